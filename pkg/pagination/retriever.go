package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/reporter-client/pkg/client"
	"github.com/Sternrassler/reporter-client/pkg/criteria"
	"github.com/Sternrassler/reporter-client/pkg/logging"
	"github.com/Sternrassler/reporter-client/pkg/table"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultPageSize is the largest page the search endpoint serves.
const DefaultPageSize = 500

// Prometheus metrics for retrievals.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_pages_fetched_total",
		Help: "Total number of non-empty pages appended to retrievals",
	})

	recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_records_fetched_total",
		Help: "Total number of records retrieved",
	})

	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reporter_retrievals_total",
		Help: "Total retrievals by outcome",
	}, []string{"status"})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reporter_retrieval_duration_seconds",
		Help:    "Wall time of complete retrievals",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// StopReason records why the page loop ended.
type StopReason string

const (
	// StopEmpty means a page with an empty results array ended the loop.
	StopEmpty StopReason = "empty"

	// StopMalformed means a response with a single top-level key and no
	// results array ended the loop. Such responses are usually error bodies.
	StopMalformed StopReason = "malformed"

	// StopPageLimit means every computed page was fetched and none was empty.
	StopPageLimit StopReason = "page_limit"
)

// Config holds retriever configuration.
type Config struct {
	// PageSize is used when the criteria carry no limit.
	PageSize int

	// Table controls how records are flattened.
	Table table.Options
}

// DefaultConfig returns the configuration matching the public endpoint.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Table:    table.DefaultOptions(),
	}
}

// PageFetcher performs one search request. *client.Client implements it.
type PageFetcher interface {
	Search(ctx context.Context, req criteria.Request) (*client.Page, error)
}

// Result is the outcome of a complete retrieval.
type Result struct {
	// RunID identifies the retrieval in logs.
	RunID string

	// Table holds one row per retrieved record in pagination order.
	Table *table.Table

	// Status is why the page loop stopped.
	Status StopReason

	// Total is the server-reported record count from the count request.
	Total int

	// PageSize is the limit sent with every page request.
	PageSize int

	// Pages is the number of non-empty pages appended.
	Pages int

	// Requests is the number of page requests issued, excluding the count
	// request.
	Requests int

	// Metas holds the meta block of each appended page, when present.
	Metas []client.Meta
}

// Retriever walks every page of a search.
type Retriever struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewRetriever creates a new retriever.
func NewRetriever(fetcher PageFetcher, config Config) *Retriever {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Table.Separator == "" {
		config.Table.Separator = table.DefaultSeparator
	}

	return &Retriever{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger(logging.ComponentRetriever),
	}
}

// FetchTotalCount returns the number of records matching c.
func (r *Retriever) FetchTotalCount(ctx context.Context, c criteria.Criteria) (int, error) {
	page, err := r.fetcher.Search(ctx, c.Request())
	if err != nil {
		return 0, fmt.Errorf("fetch total count: %w", err)
	}

	total, err := page.Total(-1)
	if err != nil {
		return 0, fmt.Errorf("fetch total count: %w", err)
	}
	return total, nil
}

// PageCount returns how many page requests a retrieval of total records issues
// at most: ceil(total/pageSize) plus one guard request that is expected to come
// back empty.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return (total+pageSize-1)/pageSize + 1
}

// FetchAll retrieves every page matching c and normalizes the records into a
// table. c is not modified. Any failed request aborts the retrieval and no
// partial result is returned.
func (r *Retriever) FetchAll(ctx context.Context, c criteria.Criteria) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()

	total, err := r.FetchTotalCount(ctx, c)
	if err != nil {
		retrievalsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("Retrieval failed")
		return nil, err
	}

	pageSize := c.Limit()
	if pageSize <= 0 {
		pageSize = r.config.PageSize
	}
	pageCount := PageCount(total, pageSize)

	logger.Info().
		Int("total", total).
		Int("page_size", pageSize).
		Int("max_pages", pageCount).
		Msg("Starting retrieval")

	res := &Result{
		RunID:    runID,
		Status:   StopPageLimit,
		Total:    total,
		PageSize: pageSize,
	}

	var pages [][]json.RawMessage
	records := 0

loop:
	for i := 0; i < pageCount; i++ {
		offset := i * pageSize
		page, err := r.fetcher.Search(ctx, c.Page(offset, pageSize))
		res.Requests++
		if err != nil {
			retrievalsTotal.WithLabelValues("error").Inc()
			logger.Error().
				Err(err).
				Int("offset", offset).
				Int("records_so_far", records).
				Msg("Retrieval failed")
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}

		switch {
		case page.Fields == 1:
			res.Status = StopMalformed
			logger.Warn().
				Int("offset", offset).
				Msg("Response without results, stopping")
			break loop

		case !page.HasResults:
			retrievalsTotal.WithLabelValues("error").Inc()
			return nil, &client.SchemaError{Field: "results", Offset: offset, Message: "missing"}

		case len(page.Results) == 0:
			res.Status = StopEmpty
			break loop
		}

		pages = append(pages, page.Results)
		if page.Meta != nil {
			res.Metas = append(res.Metas, *page.Meta)
		}
		records += len(page.Results)
		pagesFetchedTotal.Inc()
		recordsFetchedTotal.Add(float64(len(page.Results)))

		logger.Info().
			Int("page", i+1).
			Int("records", records).
			Int("total", total).
			Msg("Fetch progress")
	}
	res.Pages = len(pages)

	t, err := table.Normalize(flatten(pages, records), r.config.Table)
	if err != nil {
		retrievalsTotal.WithLabelValues("error").Inc()
		return nil, &client.SchemaError{Field: "results", Offset: -1, Message: "invalid record", Err: err}
	}
	res.Table = t

	retrievalsTotal.WithLabelValues(string(res.Status)).Inc()
	retrievalDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Int("rows", t.Len()).
		Int("columns", len(t.Columns())).
		Int("requests", res.Requests).
		Str("status", string(res.Status)).
		Dur("duration", time.Since(start)).
		Msg("Retrieval complete")

	return res, nil
}

// flatten concatenates the page arrays, preserving page order and the order
// within each page.
func flatten(pages [][]json.RawMessage, n int) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out
}
