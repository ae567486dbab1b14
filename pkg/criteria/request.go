package criteria

import (
	"encoding/json"
	"reflect"
)

// Request is a single wire payload derived from Criteria.
type Request struct {
	filters   map[string]any
	extra     map[string]any
	limit     *int
	offset    *int
	sortField string
	sortOrder string
}

// Offset returns the offset carried by the request and whether one is set.
func (r Request) Offset() (int, bool) {
	if r.offset == nil {
		return 0, false
	}
	return *r.offset, true
}

// Limit returns the limit carried by the request and whether one is set.
func (r Request) Limit() (int, bool) {
	if r.limit == nil {
		return 0, false
	}
	return *r.limit, true
}

// Payload returns the request as a freshly allocated wire mapping.
func (r Request) Payload() map[string]any {
	payload := deepCopyMap(r.extra)
	if payload == nil {
		payload = make(map[string]any)
	}
	filters := deepCopyMap(r.filters)
	if filters == nil {
		filters = make(map[string]any)
	}
	payload[keyCriteria] = filters
	if r.limit != nil {
		payload[keyLimit] = *r.limit
	}
	if r.offset != nil {
		payload[keyOffset] = *r.offset
	}
	if r.sortField != "" {
		payload[keySortField] = r.sortField
	}
	if r.sortOrder != "" {
		payload[keySortOrder] = r.sortOrder
	}
	return payload
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// deepCopy copies maps and slices so values handed out or stored cannot alias
// caller memory. Scalars are returned as is.
func deepCopy(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	}

	// Typed slices ([]int, []string, ...) hold scalars; a shallow copy suffices.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}
