// Package table turns a sequence of JSON records into a flat, row-oriented table.
//
// Nested objects are expanded into columns named by their key path joined with a
// separator ("." by default), so {"a": 1, "b": {"c": 2}} yields the columns "a"
// and "b.c". Arrays are kept whole in a single cell and are never expanded into
// rows. The column set is the union of every path seen, in first-seen order.
package table

// Row is one flattened record keyed by column name. Columns the record did not
// carry are absent from the map; columns carrying JSON null map to nil.
type Row map[string]any

// Table is the materialized result of normalizing a record sequence.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New returns an empty table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether any row carried the column.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.index[name]
	return ok
}

// Row returns the i-th row. The returned map must not be modified.
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// Rows returns the rows in order. The returned slice must not be modified.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	return t.rows
}

// Value returns the cell at row i, column col. ok is false when the record
// lacked that path.
func (t *Table) Value(i int, col string) (v any, ok bool) {
	v, ok = t.rows[i][col]
	return v, ok
}

// Column returns every row's value for col; missing cells are nil.
func (t *Table) Column(col string) []any {
	if t == nil {
		return nil
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[col]
	}
	return out
}

// append adds a row, extending the column set with any unseen keys in the order
// given by keys.
func (t *Table) append(keys []string, row Row) {
	for _, k := range keys {
		if _, ok := t.index[k]; !ok {
			t.index[k] = len(t.columns)
			t.columns = append(t.columns, k)
		}
	}
	t.rows = append(t.rows, row)
}
