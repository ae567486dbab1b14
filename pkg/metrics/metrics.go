// Package metrics exposes the Prometheus metrics of the RePORTER client.
// Metrics are defined with promauto in the packages that record them (client,
// pagination, ratelimit); this package documents them and serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all client metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Names lists every metric the client records.
var Names = []string{
	"reporter_requests_total",
	"reporter_request_duration_seconds",
	"reporter_errors_total",
	"reporter_pages_fetched_total",
	"reporter_records_fetched_total",
	"reporter_retrievals_total",
	"reporter_retrieval_duration_seconds",
	"reporter_pacer_wait_seconds",
	"reporter_pacer_redis_fallbacks_total",
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - reporter_requests_total{status} (Counter): search requests by HTTP status
//     or decode_error, schema_error, network_error
//   - reporter_request_duration_seconds (Histogram): request duration, excluding pacing
//   - reporter_errors_total{class} (Counter): errors by class (client, server,
//     network, decode, schema)
//
// Retrieval Metrics (pkg/pagination):
//   - reporter_pages_fetched_total (Counter): non-empty pages appended
//   - reporter_records_fetched_total (Counter): records appended
//   - reporter_retrievals_total{status} (Counter): retrievals by stop reason
//     (empty, malformed, page_limit) or error
//   - reporter_retrieval_duration_seconds (Histogram): wall time per retrieval
//
// Pacing Metrics (pkg/ratelimit):
//   - reporter_pacer_wait_seconds{backend} (Histogram): wait per slot (local, redis)
//   - reporter_pacer_redis_fallbacks_total (Counter): Redis failures that fell
//     back to local pacing
//
// Example Prometheus Queries:
//
//   # Records per minute
//   rate(reporter_records_fetched_total[1m]) * 60
//
//   # Malformed stops
//   increase(reporter_retrievals_total{status="malformed"}[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(reporter_request_duration_seconds_bucket[5m]))
