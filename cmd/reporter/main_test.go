package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/reporter-client/internal/testutil"
	"github.com/Sternrassler/reporter-client/pkg/client"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
	"github.com/Sternrassler/reporter-client/pkg/reporter"
	"github.com/Sternrassler/reporter-client/pkg/table"
)

func newTestServer(t *testing.T, mock *testutil.MockReporter) http.Handler {
	t.Helper()

	cc := client.DefaultConfig()
	cc.Endpoint = mock.URL()
	cc.MinInterval = 0

	c, err := client.New(cc)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return newRouter(&server{
		reporter: reporter.New(pagination.NewRetriever(c, pagination.DefaultConfig())),
		format:   table.FormatJSON,
		logger:   zerolog.Nop(),
	})
}

func TestHealthEndpoint(t *testing.T) {
	mock := testutil.NewMockReporter(nil)
	defer mock.Close()

	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestReadyEndpoint_WithoutRedis(t *testing.T) {
	mock := testutil.NewMockReporter(nil)
	defer mock.Close()

	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockReporter(nil)
	defer mock.Close()

	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reporter_request_duration_seconds")
}

func TestAwardsEndpoint(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(620))
	defer mock.Close()

	body := `{"years":[2023],"activity_codes":["R01"]}`
	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/awards", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "empty", w.Header().Get("X-Retrieval-Status"))
	assert.Equal(t, "620", w.Header().Get("X-Total-Count"))
	assert.NotEmpty(t, w.Header().Get("X-Run-ID"))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 620)
	assert.Equal(t, "MD", rows[0]["organization.org_state"])

	crit := mock.Requests()[0].Payload["criteria"].(map[string]any)
	assert.Equal(t, []any{"NCI"}, crit["agencies"])
}

func TestAwardsEndpoint_Validation(t *testing.T) {
	mock := testutil.NewMockReporter(nil)
	defer mock.Close()
	h := newTestServer(t, mock)

	for _, body := range []string{
		`{"years":[2023]}`,
		`{"years":[2023],"activity_codes":["R01"],"agency":"NIA"}`,
		`not json`,
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/awards", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Zero(t, mock.GetRequestCount())
}

func TestSearchEndpoint_CSV(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(4))
	defer mock.Close()

	body := `{"criteria":{"fiscal_years":[2023]},"limit":2}`
	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/search?format=csv", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5) // header + 4 rows
	assert.Contains(t, records[0], "appl_id")
	assert.Contains(t, records[0], "organization.org_name")

	// unrestricted search: no agency injected
	crit := mock.Requests()[0].Payload["criteria"].(map[string]any)
	assert.NotContains(t, crit, "agencies")
}

func TestSearchEndpoint_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(10))
	defer mock.Close()
	mock.SetPageResponse(0, testutil.NewServerErrorResponse())

	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"criteria":{}}`)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "status 500")
}

func TestSearchEndpoint_BadFormat(t *testing.T) {
	mock := testutil.NewMockReporter(nil)
	defer mock.Close()

	w := httptest.NewRecorder()
	newTestServer(t, mock).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/search?format=xlsx", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadCriteria_Stdin(t *testing.T) {
	c, err := readCriteria(strings.NewReader(`{"criteria":{"fiscal_years":[2023]},"sort_order":"asc"}`), "-")
	require.NoError(t, err)
	assert.Equal(t, "asc", c.SortOrder())

	_, err = readCriteria(strings.NewReader(`[]`), "-")
	assert.Error(t, err)

	_, err = readCriteria(nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(append(args, "--log-level", "error"))

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_FetchAwards(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(3))
	defer mock.Close()

	out, err := runCLI(t, nil,
		"fetch", "awards",
		"--years", "2022,2023",
		"--activity-codes", "R01",
		"--pi-profile-ids", "9000000,9000001",
		"--endpoint", mock.URL(),
		"--min-interval", "0s",
		"-o", "jsonl",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)

	crit := mock.Requests()[0].Payload["criteria"].(map[string]any)
	assert.Equal(t, []any{float64(2022), float64(2023)}, crit["fiscal_years"])
	assert.Equal(t, []any{float64(9000000), float64(9000001)}, crit["pi_profile_ids"])
}

func TestCLI_FetchQueryFromFile(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(2))
	defer mock.Close()

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"criteria":{"org_states":["MD"]}}`), 0o644))

	out, err := runCLI(t, nil,
		"fetch", "query",
		"--payload", path,
		"--endpoint", mock.URL(),
		"--min-interval", "0s",
		"-o", "json",
	)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)
}

func TestCLI_FetchCount(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(2))
	defer mock.Close()
	mock.SetTotal(4321)

	out, err := runCLI(t, strings.NewReader(`{"criteria":{}}`),
		"fetch", "count",
		"--payload", "-",
		"--endpoint", mock.URL(),
		"--min-interval", "0s",
	)
	require.NoError(t, err)
	assert.Equal(t, "4321\n", out)
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reporter "+client.Version)
}
