package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is an output encoding for a table.
type Format string

const (
	FormatJSON      Format = "json"
	FormatJSONLines Format = "jsonl"
	FormatCSV       Format = "csv"
	FormatYAML      Format = "yaml"
)

// ParseFormat converts a user-supplied name into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONLines, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, jsonl, csv or yaml)", s)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSONLines:
		return "application/x-ndjson"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

// Write encodes t to w in the given format.
func (t *Table) Write(w io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		return t.WriteJSON(w)
	case FormatJSONLines:
		return t.WriteJSONLines(w)
	case FormatCSV:
		return t.WriteCSV(w)
	case FormatYAML:
		return t.WriteYAML(w)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

// WriteCSV writes a header row of all columns followed by one line per row.
// Missing and null cells are empty; arrays and objects are JSON-encoded.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(t.columns))
	for i, row := range t.rows {
		for j, col := range t.columns {
			s, err := cellString(row[col])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			record[j] = s
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the rows as a JSON array of objects, keys in column order.
func (t *Table) WriteJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range t.rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		if err := t.encodeRow(&buf, i); err != nil {
			return err
		}
	}
	if len(t.rows) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteJSONLines writes one JSON object per line.
func (t *Table) WriteJSONLines(w io.Writer) error {
	var buf bytes.Buffer
	for i := range t.rows {
		buf.Reset()
		if err := t.encodeRow(&buf, i); err != nil {
			return err
		}
		buf.WriteByte('\n')
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML writes the rows as a YAML sequence of mappings, keys in column
// order.
func (t *Table) WriteYAML(w io.Writer) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for i, row := range t.rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, col := range t.columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			var val yaml.Node
			if err := val.Encode(yamlValue(v)); err != nil {
				return fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col},
				&val,
			)
		}
		seq.Content = append(seq.Content, m)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func (t *Table) encodeRow(buf *bytes.Buffer, i int) error {
	row := t.rows[i]
	buf.WriteByte('{')
	first := true
	for _, col := range t.columns {
		v, ok := row[col]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(col)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("row %d column %q: %w", i, col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return nil
}

func cellString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// yamlValue converts json.Number leaves into real numbers so YAML does not quote
// them as strings.
func yamlValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = yamlValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = yamlValue(e)
		}
		return out
	default:
		return v
	}
}
