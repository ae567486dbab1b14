// Package reporter provides preset NCI award queries on top of the paginated
// retriever.
//
// Every preset restricts the search to NCI-administered awards, sorts by
// project start date (newest first) and requests pages of 500 records.
package reporter

import (
	"context"

	"github.com/Sternrassler/reporter-client/pkg/criteria"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
)

// Fixed values applied by every preset.
const (
	Agency    = "NCI"
	SortField = "project_start_date"
	SortOrder = criteria.SortDesc
	PageLimit = 500
)

// Reporter runs preset queries through a retriever.
type Reporter struct {
	retriever *pagination.Retriever
}

// New creates a Reporter backed by r.
func New(r *pagination.Retriever) *Reporter {
	return &Reporter{retriever: r}
}

// AwardsByYearAndActivityCodes builds criteria for NCI awards in the given
// fiscal years and activity codes.
func AwardsByYearAndActivityCodes(years []int, activityCodes []string) criteria.Criteria {
	return nci(criteria.New().
		WithFilter(criteria.FilterFiscalYears, years).
		WithFilter(criteria.FilterActivityCodes, activityCodes))
}

// AwardsByYearActivityCodesAndPPIDs narrows AwardsByYearAndActivityCodes to the
// given PI profile IDs.
func AwardsByYearActivityCodesAndPPIDs(years []int, activityCodes []string, ppids []int64) criteria.Criteria {
	return AwardsByYearAndActivityCodes(years, activityCodes).
		WithFilter(criteria.FilterPIProfileIDs, ppids)
}

// AwardsByPayload applies the NCI agency, sort and page size to caller-supplied
// criteria. Other filters and top-level fields are kept.
func AwardsByPayload(c criteria.Criteria) criteria.Criteria {
	return nci(c)
}

// nci applies the fixed agency, sort and limit.
func nci(c criteria.Criteria) criteria.Criteria {
	return c.
		WithFilter(criteria.FilterAgencies, []string{Agency}).
		WithSort(SortField, SortOrder).
		WithLimit(PageLimit)
}

// NCIAwardsByYearAndActivityCodes retrieves NCI awards for the given fiscal
// years and activity codes, e.g. years [2023] and codes ["R01", "R37"].
func (r *Reporter) NCIAwardsByYearAndActivityCodes(ctx context.Context, years []int, activityCodes []string) (*pagination.Result, error) {
	return r.retriever.FetchAll(ctx, AwardsByYearAndActivityCodes(years, activityCodes))
}

// NCIAwardsByYearActivityCodesAndPPIDs retrieves NCI awards for the given fiscal
// years, activity codes and PI profile IDs.
func (r *Reporter) NCIAwardsByYearActivityCodesAndPPIDs(ctx context.Context, years []int, activityCodes []string, ppids []int64) (*pagination.Result, error) {
	return r.retriever.FetchAll(ctx, AwardsByYearActivityCodesAndPPIDs(years, activityCodes, ppids))
}

// NCIAwardsByPayload retrieves NCI awards matching caller-supplied criteria.
// Use Retriever.FetchAll directly for searches outside NCI.
func (r *Reporter) NCIAwardsByPayload(ctx context.Context, c criteria.Criteria) (*pagination.Result, error) {
	return r.retriever.FetchAll(ctx, AwardsByPayload(c))
}

// Retriever returns the underlying retriever.
func (r *Reporter) Retriever() *pagination.Retriever {
	return r.retriever
}
