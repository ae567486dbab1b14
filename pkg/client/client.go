// Package client provides the HTTP transport for the RePORTER project search
// endpoint: JSON POST requests, request pacing, and typed errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/reporter-client/pkg/criteria"
	"github.com/Sternrassler/reporter-client/pkg/logging"
	"github.com/Sternrassler/reporter-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultEndpoint is the RePORTER v2 project search URL.
const DefaultEndpoint = "https://api.reporter.nih.gov/v2/projects/search"

// Version is reported in the default User-Agent.
const Version = "0.1.0"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 256 << 20

// Prometheus metrics for search requests.
var (
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reporter_requests_total",
		Help: "Total search requests by status",
	}, []string{"status"})

	searchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reporter_request_duration_seconds",
		Help:    "Search request duration in seconds, excluding pacing",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	searchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reporter_errors_total",
		Help: "Total search errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies that are not a JSON object.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassSchema represents JSON that lacks the expected fields.
	ErrorClassSchema ErrorClass = "schema"
)

// Client posts search payloads to the RePORTER endpoint.
type Client struct {
	httpClient *http.Client
	pacer      *ratelimit.Pacer
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the search URL. Tests point this at a mock server.
	Endpoint string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP request. 0 means no timeout.
	Timeout time.Duration

	// MinInterval is the minimum spacing between requests. 0 disables pacing.
	MinInterval time.Duration

	// Redis, when set, shares the pacing slot across processes.
	Redis *redis.Client

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// DefaultConfig returns the configuration for the public RePORTER API.
func DefaultConfig() Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		UserAgent:   "reporter-client/" + Version,
		Timeout:     30 * time.Second,
		MinInterval: ratelimit.DefaultInterval,
	}
}

// New creates a new search client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL (got %q)", cfg.Endpoint)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("min_interval must be >= 0 (got %s)", cfg.MinInterval)
	}

	logger := logging.NewLogger(logging.ComponentClient)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		pacer:      ratelimit.NewPacer(cfg.Redis, cfg.MinInterval, logging.NewLogger(logging.ComponentPacer)),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Search posts one request payload and decodes the response.
//
// Transport failures, non-2xx statuses and bodies that are not JSON objects are
// returned as *RequestError. A meta or results field of the wrong type is a
// *SchemaError. Nothing is retried.
func (c *Client) Search(ctx context.Context, req criteria.Request) (*Page, error) {
	offset, ok := req.Offset()
	if !ok {
		offset = -1
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, &RequestError{Class: ErrorClassNetwork, Offset: offset, Message: "pacing", Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Int("offset", offset).
		Int("payload_bytes", len(body)).
		Msg("Executing search request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	searchRequestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		c.logger.Error().Err(err).Int("offset", offset).Msg("HTTP request failed")
		return nil, c.fail(&RequestError{Class: ErrorClassNetwork, Offset: offset, Err: err}, "network_error")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(&RequestError{
			Class:      ErrorClassNetwork,
			StatusCode: resp.StatusCode,
			Offset:     offset,
			Message:    "read response body",
			Err:        err,
		}, "network_error")
	}

	if class := classifyStatus(resp.StatusCode); class != "" {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Int("offset", offset).
			Str("error_class", string(class)).
			Msg("Search request error")
		return nil, c.fail(&RequestError{
			Class:      class,
			StatusCode: resp.StatusCode,
			Offset:     offset,
			Message:    snippet(data),
		}, strconv.Itoa(resp.StatusCode))
	}

	page, err := decodePage(data, offset)
	if err != nil {
		status := "decode_error"
		class := ErrorClassDecode
		if _, ok := err.(*SchemaError); ok {
			status = "schema_error"
			class = ErrorClassSchema
		}
		searchErrorsTotal.WithLabelValues(string(class)).Inc()
		searchRequestsTotal.WithLabelValues(status).Inc()
		return nil, err
	}

	searchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Int("offset", offset).
		Int("status", resp.StatusCode).
		Int("results", len(page.Results)).
		Msg("Search request complete")

	return page, nil
}

// fail records metrics for a request error and returns it.
func (c *Client) fail(err *RequestError, status string) error {
	searchErrorsTotal.WithLabelValues(string(err.Class)).Inc()
	searchRequestsTotal.WithLabelValues(status).Inc()
	return err
}

// Endpoint returns the configured search URL.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// classifyStatus categorizes a non-success HTTP status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that survived redirects are not usable responses.
		return ErrorClassClient
	}
}

// snippet trims an error body for inclusion in messages.
func snippet(body []byte) string {
	const maxLen = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// Close releases idle connections. A Redis client passed in Config is owned by
// the caller and left open.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
