package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultSeparator joins nested key paths into column names.
const DefaultSeparator = "."

// ErrNotObject is returned when a record is not a JSON object.
var ErrNotObject = errors.New("record is not a JSON object")

// Options controls normalization.
type Options struct {
	// Separator joins parent and child keys. Defaults to ".".
	Separator string

	// MaxLevel limits how many levels of nesting are expanded. Objects below
	// the limit are kept whole in one cell. 0 means unlimited.
	MaxLevel int
}

// DefaultOptions returns the options used by the retriever.
func DefaultOptions() Options {
	return Options{Separator: DefaultSeparator}
}

// Normalize flattens records into a table, one row per record in input order.
// Key order within each record is preserved, which makes column order
// deterministic. Numbers are kept as json.Number.
func Normalize(records []json.RawMessage, opts Options) (*Table, error) {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}

	t := New()
	for i, rec := range records {
		row := make(Row)
		var keys []string
		if err := flatten(rec, "", 0, opts, row, &keys); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		t.append(keys, row)
	}
	return t, nil
}

// NormalizeValues flattens already-decoded records. Key order inside maps is
// not defined, so columns first seen in the same record are sorted.
func NormalizeValues(records []map[string]any, opts Options) (*Table, error) {
	raws := make([]json.RawMessage, len(records))
	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		raws[i] = data
	}
	return Normalize(raws, opts)
}

func flatten(raw json.RawMessage, prefix string, level int, opts Options, row Row, keys *[]string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		key, _ := tok.(string)

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}

		name := key
		if prefix != "" {
			name = prefix + opts.Separator + key
		}

		if isObject(val) && (opts.MaxLevel == 0 || level < opts.MaxLevel) {
			if err := flatten(val, name, level+1, opts, row, keys); err != nil {
				return err
			}
			continue
		}

		v, err := decodeValue(val)
		if err != nil {
			return fmt.Errorf("decode %q: %w", name, err)
		}
		if _, seen := row[name]; !seen {
			*keys = append(*keys, name)
		}
		row[name] = v
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
