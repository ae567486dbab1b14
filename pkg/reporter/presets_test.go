package reporter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Sternrassler/reporter-client/internal/testutil"
	"github.com/Sternrassler/reporter-client/pkg/client"
	"github.com/Sternrassler/reporter-client/pkg/criteria"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReporter(t *testing.T, url string) *Reporter {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.Endpoint = url
	cfg.MinInterval = 0

	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return New(pagination.NewRetriever(c, pagination.DefaultConfig()))
}

func TestAwardsByYearAndActivityCodes_Payload(t *testing.T) {
	c := AwardsByYearAndActivityCodes([]int{2022, 2023}, []string{"R01", "R37"})

	got, err := json.Marshal(c)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"criteria": {
			"fiscal_years": [2022, 2023],
			"agencies": ["NCI"],
			"activity_codes": ["R01", "R37"]
		},
		"limit": 500,
		"sort_field": "project_start_date",
		"sort_order": "desc"
	}`, string(got))
}

func TestAwardsByYearActivityCodesAndPPIDs_Payload(t *testing.T) {
	c := AwardsByYearActivityCodesAndPPIDs([]int{2023}, []string{"R01"}, []int64{9999999, 9999991})

	got, err := json.Marshal(c)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"criteria": {
			"fiscal_years": [2023],
			"agencies": ["NCI"],
			"activity_codes": ["R01"],
			"pi_profile_ids": [9999999, 9999991]
		},
		"limit": 500,
		"sort_field": "project_start_date",
		"sort_order": "desc"
	}`, string(got))
}

func TestAwardsByPayload_OverridesAgencyAndSort(t *testing.T) {
	in := criteria.New().
		WithFilter(criteria.FilterAgencies, []string{"NHLBI"}).
		WithFilter("org_states", []string{"MD"}).
		WithSort("fiscal_year", criteria.SortAsc).
		WithField("include_fields", []string{"ApplId", "ProjectTitle"})

	c := AwardsByPayload(in)

	agencies, ok := c.Filter(criteria.FilterAgencies)
	require.True(t, ok)
	assert.Equal(t, []string{"NCI"}, agencies)
	assert.Equal(t, SortField, c.SortField())
	assert.Equal(t, criteria.SortDesc, c.SortOrder())
	assert.Equal(t, PageLimit, c.Limit())

	states, ok := c.Filter("org_states")
	require.True(t, ok)
	assert.Equal(t, []string{"MD"}, states)
	assert.Equal(t, []string{"ApplId", "ProjectTitle"}, c.Request().Payload()["include_fields"])

	// input untouched
	orig, _ := in.Filter(criteria.FilterAgencies)
	assert.Equal(t, []string{"NHLBI"}, orig)
	assert.Equal(t, "fiscal_year", in.SortField())
}

func TestAwardsByYearAndActivityCodes_InputsCopied(t *testing.T) {
	years := []int{2023}
	codes := []string{"R01"}
	c := AwardsByYearAndActivityCodes(years, codes)

	years[0] = 1990
	codes[0] = "XXX"

	got, _ := c.Filter(criteria.FilterFiscalYears)
	assert.Equal(t, []int{2023}, got)
	gotCodes, _ := c.Filter(criteria.FilterActivityCodes)
	assert.Equal(t, []string{"R01"}, gotCodes)
}

func TestNCIAwardsByYearAndActivityCodes(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(1200))
	defer mock.Close()

	r := newReporter(t, mock.URL())
	res, err := r.NCIAwardsByYearAndActivityCodes(context.Background(), []int{2023}, []string{"R01"})
	require.NoError(t, err)

	assert.Equal(t, 1200, res.Table.Len())
	assert.Equal(t, pagination.StopEmpty, res.Status)

	reqs := mock.Requests()
	require.Len(t, reqs, 5)

	// count request carries the limit but no offset
	assert.False(t, reqs[0].IsPage())
	require.NotNil(t, reqs[0].Limit)
	assert.Equal(t, 500, *reqs[0].Limit)

	for i, req := range reqs[1:] {
		require.NotNil(t, req.Offset)
		assert.Equal(t, i*500, *req.Offset)
		assert.Equal(t, "project_start_date", req.Payload["sort_field"])
		assert.Equal(t, "desc", req.Payload["sort_order"])

		crit, ok := req.Payload["criteria"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, []any{"NCI"}, crit["agencies"])
		assert.Equal(t, []any{float64(2023)}, crit["fiscal_years"])
		assert.Equal(t, []any{"R01"}, crit["activity_codes"])
	}
}

func TestNCIAwardsByYearActivityCodesAndPPIDs(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(3))
	defer mock.Close()

	r := newReporter(t, mock.URL())
	res, err := r.NCIAwardsByYearActivityCodesAndPPIDs(context.Background(), []int{2023}, []string{"R01"}, []int64{9000001})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Table.Len())

	crit, ok := mock.Requests()[0].Payload["criteria"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{float64(9000001)}, crit["pi_profile_ids"])
}

func TestNCIAwardsByPayload(t *testing.T) {
	mock := testutil.NewMockReporter(testutil.GenerateProjects(10))
	defer mock.Close()

	payload := []byte(`{"criteria":{"fiscal_years":[2021],"agencies":["NIA"]},"sort_field":"appl_id"}`)
	c, err := criteria.Parse(payload)
	require.NoError(t, err)

	r := newReporter(t, mock.URL())
	res, err := r.NCIAwardsByPayload(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Table.Len())

	sent := mock.Requests()[1].Payload
	assert.Equal(t, "project_start_date", sent["sort_field"])
	crit := sent["criteria"].(map[string]any)
	assert.Equal(t, []any{"NCI"}, crit["agencies"])
	assert.Equal(t, []any{float64(2021)}, crit["fiscal_years"])
}
