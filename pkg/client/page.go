package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Meta is the metadata block of a search response.
type Meta struct {
	SearchID          string         `json:"search_id,omitempty"`
	Total             *int64         `json:"total,omitempty"`
	Offset            int            `json:"offset,omitempty"`
	Limit             int            `json:"limit,omitempty"`
	SortField         string         `json:"sort_field,omitempty"`
	SortOrder         string         `json:"sort_order,omitempty"`
	SortedByRelevance bool           `json:"sorted_by_relevance,omitempty"`
	Properties        map[string]any `json:"properties,omitempty"`
}

// Page is one decoded search response.
type Page struct {
	// Fields is the number of top-level keys in the response object.
	Fields int

	// Meta is nil when the response carried no "meta" key.
	Meta *Meta

	// HasResults reports whether the response carried a "results" key.
	HasResults bool

	// Results holds the records undecoded so key order survives into the table.
	Results []json.RawMessage
}

// Total returns meta.total, or a *SchemaError if it is absent or invalid.
func (p *Page) Total(offset int) (int, error) {
	if p.Meta == nil {
		return 0, &SchemaError{Field: "meta", Offset: offset, Message: "missing"}
	}
	if p.Meta.Total == nil {
		return 0, &SchemaError{Field: "meta.total", Offset: offset, Message: "missing"}
	}
	if *p.Meta.Total < 0 {
		return 0, &SchemaError{Field: "meta.total", Offset: offset, Message: fmt.Sprintf("negative value %d", *p.Meta.Total)}
	}
	return int(*p.Meta.Total), nil
}

// decodePage parses a response body. A body that is not a JSON object is a
// *RequestError; a JSON object whose meta or results have the wrong type is a
// *SchemaError.
func decodePage(body []byte, offset int) (*Page, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &RequestError{
			Class:   ErrorClassDecode,
			Offset:  offset,
			Message: "response is not a JSON object",
			Err:     err,
		}
	}
	if top == nil {
		return nil, &RequestError{
			Class:   ErrorClassDecode,
			Offset:  offset,
			Message: "response is JSON null",
		}
	}

	page := &Page{Fields: len(top)}

	if raw, ok := top["meta"]; ok && !isNull(raw) {
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, &SchemaError{Field: "meta", Offset: offset, Message: "invalid", Err: err}
		}
		page.Meta = &meta
	}

	if raw, ok := top["results"]; ok {
		page.HasResults = true
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &page.Results); err != nil {
				return nil, &SchemaError{Field: "results", Offset: offset, Message: "not an array", Err: err}
			}
		}
	}

	return page, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
