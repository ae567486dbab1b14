// Package criteria models the search payload sent to the RePORTER project search
// endpoint.
//
// A Criteria value is immutable: every With* method returns a modified copy and
// the maps a caller passes in are deep-copied. The payload that actually goes on
// the wire is a Request snapshot derived from the Criteria, so injecting offsets
// during pagination never leaks back into the caller's value.
package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Sort orders accepted by the search endpoint.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Well-known filter names inside the "criteria" sub-object.
const (
	FilterFiscalYears   = "fiscal_years"
	FilterAgencies      = "agencies"
	FilterActivityCodes = "activity_codes"
	FilterPIProfileIDs  = "pi_profile_ids"
)

// Top-level payload keys.
const (
	keyCriteria  = "criteria"
	keyLimit     = "limit"
	keyOffset    = "offset"
	keySortField = "sort_field"
	keySortOrder = "sort_order"
)

// Criteria is the caller-facing search specification.
type Criteria struct {
	filters   map[string]any
	extra     map[string]any
	limit     int
	offset    int
	hasOffset bool
	sortField string
	sortOrder string
}

// New returns empty criteria.
func New() Criteria {
	return Criteria{}
}

// WithFilter returns a copy with the named filter set.
func (c Criteria) WithFilter(name string, value any) Criteria {
	out := c.clone()
	if out.filters == nil {
		out.filters = make(map[string]any)
	}
	out.filters[name] = deepCopy(value)
	return out
}

// WithoutFilter returns a copy with the named filter removed.
func (c Criteria) WithoutFilter(name string) Criteria {
	out := c.clone()
	delete(out.filters, name)
	return out
}

// WithLimit returns a copy with the page size set. Zero clears it.
func (c Criteria) WithLimit(limit int) Criteria {
	out := c.clone()
	out.limit = limit
	return out
}

// WithOffset returns a copy with an explicit starting offset.
func (c Criteria) WithOffset(offset int) Criteria {
	out := c.clone()
	out.offset = offset
	out.hasOffset = true
	return out
}

// WithSort returns a copy sorted by field in the given order.
func (c Criteria) WithSort(field, order string) Criteria {
	out := c.clone()
	out.sortField = field
	out.sortOrder = order
	return out
}

// WithField returns a copy with an additional top-level payload key, for
// parameters such as include_fields that are not filters.
func (c Criteria) WithField(key string, value any) Criteria {
	out := c.clone()
	if out.extra == nil {
		out.extra = make(map[string]any)
	}
	out.extra[key] = deepCopy(value)
	return out
}

// Filter returns a copy of the named filter value.
func (c Criteria) Filter(name string) (any, bool) {
	v, ok := c.filters[name]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// FilterNames returns the filter names in sorted order.
func (c Criteria) FilterNames() []string {
	names := make([]string, 0, len(c.filters))
	for name := range c.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Limit returns the configured page size, 0 if unset.
func (c Criteria) Limit() int { return c.limit }

// Offset returns the configured offset, 0 if unset.
func (c Criteria) Offset() int { return c.offset }

// SortField returns the sort field.
func (c Criteria) SortField() string { return c.sortField }

// SortOrder returns the sort order.
func (c Criteria) SortOrder() string { return c.sortOrder }

// Request returns the payload snapshot for the criteria as given.
func (c Criteria) Request() Request {
	r := Request{
		filters:   deepCopyMap(c.filters),
		extra:     deepCopyMap(c.extra),
		sortField: c.sortField,
		sortOrder: c.sortOrder,
	}
	if c.limit > 0 {
		limit := c.limit
		r.limit = &limit
	}
	if c.hasOffset {
		offset := c.offset
		r.offset = &offset
	}
	return r
}

// Page returns the payload snapshot for one page of a paginated retrieval.
func (c Criteria) Page(offset, limit int) Request {
	r := c.Request()
	r.offset = &offset
	r.limit = &limit
	return r
}

// MarshalJSON encodes the criteria as its request payload.
func (c Criteria) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Request())
}

// Parse builds criteria from a JSON payload in the endpoint's wire shape.
func Parse(data []byte) (Criteria, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Criteria{}, fmt.Errorf("decode payload: %w", err)
	}
	return FromMap(raw)
}

// FromMap builds criteria from a decoded payload mapping. The mapping is not
// retained.
func FromMap(payload map[string]any) (Criteria, error) {
	c := New()
	for key, value := range payload {
		switch key {
		case keyCriteria:
			if value == nil {
				continue
			}
			filters, ok := value.(map[string]any)
			if !ok {
				return Criteria{}, fmt.Errorf("%q must be an object, got %T", key, value)
			}
			for name, v := range filters {
				c = c.WithFilter(name, v)
			}
		case keyLimit:
			n, err := toInt(value)
			if err != nil {
				return Criteria{}, fmt.Errorf("%q: %w", key, err)
			}
			c = c.WithLimit(n)
		case keyOffset:
			n, err := toInt(value)
			if err != nil {
				return Criteria{}, fmt.Errorf("%q: %w", key, err)
			}
			c = c.WithOffset(n)
		case keySortField, keySortOrder:
			s, ok := value.(string)
			if !ok {
				return Criteria{}, fmt.Errorf("%q must be a string, got %T", key, value)
			}
			if key == keySortField {
				c = c.WithSort(s, c.sortOrder)
			} else {
				c = c.WithSort(c.sortField, s)
			}
		default:
			c = c.WithField(key, value)
		}
	}
	return c, nil
}

func (c Criteria) clone() Criteria {
	out := c
	out.filters = deepCopyMap(c.filters)
	out.extra = deepCopyMap(c.extra)
	return out
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", n)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}
