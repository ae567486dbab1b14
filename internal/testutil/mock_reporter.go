// Package testutil provides testing utilities for the RePORTER client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// DefaultLimit is the page size the real endpoint applies when none is sent.
const DefaultLimit = 50

// MockResponse defines a canned response for one request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request the mock received.
type RecordedRequest struct {
	Method  string
	Header  http.Header
	Payload map[string]any

	// Offset and Limit are nil when the payload omitted them.
	Offset *int
	Limit  *int
}

// IsPage reports whether the request carried an explicit offset, which is how
// page requests differ from the initial count request.
func (r RecordedRequest) IsPage() bool {
	return r.Offset != nil
}

// MockReporter is a configurable mock of the project search endpoint. It serves
// Records sliced by the payload's offset and limit, and reports either
// len(Records) or an overridden total in meta.total.
type MockReporter struct {
	server *httptest.Server

	mu        sync.RWMutex
	records   []map[string]any
	total     *int
	overrides map[int]MockResponse
	handler   http.HandlerFunc
	requests  []RecordedRequest
}

// NewMockReporter starts a mock serving the given records.
func NewMockReporter(records []map[string]any) *MockReporter {
	m := &MockReporter{
		records:   records,
		overrides: make(map[int]MockResponse),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockReporter) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockReporter) Close() {
	m.server.Close()
}

// SetTotal overrides the meta.total reported to clients.
func (m *MockReporter) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = &total
}

// SetRecords replaces the served records.
func (m *MockReporter) SetRecords(records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
}

// SetPageResponse serves resp for page requests at the given offset.
func (m *MockReporter) SetPageResponse(offset int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[offset] = resp
}

// SetHandler replaces the whole request handler. Requests are still recorded.
func (m *MockReporter) SetHandler(h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Requests returns a copy of every recorded request in arrival order.
func (m *MockReporter) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// PageRequests returns only the recorded page requests.
func (m *MockReporter) PageRequests() []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.IsPage() {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockReporter) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears recorded requests.
func (m *MockReporter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func (m *MockReporter) serve(w http.ResponseWriter, r *http.Request) {
	rec := RecordedRequest{Method: r.Method, Header: r.Header.Clone()}

	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &rec.Payload); err == nil {
		rec.Offset = intField(rec.Payload, "offset")
		rec.Limit = intField(rec.Payload, "limit")
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	handler := m.handler
	override, hasOverride := MockResponse{}, false
	if rec.Offset != nil {
		override, hasOverride = m.overrides[*rec.Offset]
	}
	m.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}
	if hasOverride {
		writeMock(w, override)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if rec.Payload == nil {
		writeMock(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"error":"invalid JSON payload"}`})
		return
	}

	m.defaultHandler(w, rec)
}

// defaultHandler slices the configured records like the real endpoint.
func (m *MockReporter) defaultHandler(w http.ResponseWriter, rec RecordedRequest) {
	offset, limit := 0, DefaultLimit
	if rec.Offset != nil {
		offset = *rec.Offset
	}
	if rec.Limit != nil {
		limit = *rec.Limit
	}

	m.mu.RLock()
	total := len(m.records)
	if m.total != nil {
		total = *m.total
	}
	results := make([]map[string]any, 0)
	if offset < len(m.records) {
		end := offset + limit
		if end > len(m.records) {
			end = len(m.records)
		}
		results = append(results, m.records[offset:end]...)
	}
	m.mu.RUnlock()

	resp := map[string]any{
		"meta": map[string]any{
			"search_id":  "mock-search",
			"total":      total,
			"offset":     offset,
			"limit":      limit,
			"sort_field": rec.Payload["sort_field"],
			"sort_order": rec.Payload["sort_order"],
		},
		"results": results,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeMock(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func intField(payload map[string]any, key string) *int {
	v, ok := payload[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

// GenerateProjects builds n project-like records with nested fields.
func GenerateProjects(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		out[i] = map[string]any{
			"appl_id":       10000000 + i,
			"project_num":   fmt.Sprintf("5R01CA%06d-02", i),
			"fiscal_year":   2023,
			"activity_code": "R01",
			"award_amount":  250000 + i,
			"organization": map[string]any{
				"org_name":  fmt.Sprintf("University %d", i%7),
				"org_state": "MD",
			},
			"agency_ic_admin": map[string]any{
				"code":         "CA",
				"abbreviation": "NCI",
			},
			"principal_investigators": []any{
				map[string]any{"profile_id": 9000000 + i, "is_contact_pi": true},
			},
		}
	}
	return out
}

// NewErrorResponse creates a single-key error body like the endpoint returns
// for rejected payloads.
func NewErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return MockResponse{StatusCode: status, Body: string(body)}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal server error")
}
