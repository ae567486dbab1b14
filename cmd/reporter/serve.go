package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/reporter-client/pkg/client"
	"github.com/Sternrassler/reporter-client/pkg/criteria"
	"github.com/Sternrassler/reporter-client/pkg/logging"
	"github.com/Sternrassler/reporter-client/pkg/metrics"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
	"github.com/Sternrassler/reporter-client/pkg/reporter"
	"github.com/Sternrassler/reporter-client/pkg/table"
)

// maxPayloadBytes caps request bodies on /search and /awards.
const maxPayloadBytes = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve retrievals over HTTP",
	Long: `Start an HTTP server that runs retrievals on request.

Endpoints:
  GET  /health   liveness
  GET  /ready    readiness (pings Redis when a shared pacer is configured)
  GET  /metrics  Prometheus metrics
  POST /search   body: search payload; runs an unrestricted retrieval
  POST /awards   body: {"years": [...], "activity_codes": [...], "pi_profile_ids": [...]}

The table format follows ?format=json|jsonl|csv|yaml, defaulting to --output.
Run several instances against one Redis (--redis-addr) to keep the combined
request rate within the API's one request per second.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		comp, err := newComponents(cfg)
		if err != nil {
			return err
		}
		defer comp.close()

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: newRouter(&server{
				reporter: comp.reporter,
				redis:    comp.redis,
				format:   cfg.Format(),
				logger:   logging.NewLogger(logging.ComponentServer),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", srv.Addr).Str("endpoint", comp.client.Endpoint()).Msg("Server started")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-cmd.Context().Done():
		}

		logger.Info().Msg("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
}

type server struct {
	reporter *reporter.Reporter
	redis    *redis.Client
	format   table.Format
	logger   zerolog.Logger
}

// awardsRequest is the /awards body.
type awardsRequest struct {
	Years         []int    `json:"years"`
	ActivityCodes []string `json:"activity_codes"`
	PIProfileIDs  []int64  `json:"pi_profile_ids"`
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/search", s.handleSearch)
	r.Post("/awards", s.handleAwards)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Errorf("redis: %w", err))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "READY")
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	format, err := s.requestFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read payload: %w", err))
		return
	}
	c, err := criteria.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.reporter.Retriever().FetchAll(r.Context(), c)
	s.respond(w, format, res, err)
}

func (s *server) handleAwards(w http.ResponseWriter, r *http.Request) {
	format, err := s.requestFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req awardsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if len(req.Years) == 0 || len(req.ActivityCodes) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("years and activity_codes are required"))
		return
	}

	var res *pagination.Result
	if len(req.PIProfileIDs) > 0 {
		res, err = s.reporter.NCIAwardsByYearActivityCodesAndPPIDs(r.Context(), req.Years, req.ActivityCodes, req.PIProfileIDs)
	} else {
		res, err = s.reporter.NCIAwardsByYearAndActivityCodes(r.Context(), req.Years, req.ActivityCodes)
	}
	s.respond(w, format, res, err)
}

func (s *server) requestFormat(r *http.Request) (table.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return table.ParseFormat(f)
	}
	return s.format, nil
}

// respond writes the table, or maps a retrieval error to a status code.
func (s *server) respond(w http.ResponseWriter, format table.Format, res *pagination.Result, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.Is(err, client.ErrRequest), errors.Is(err, client.ErrSchema):
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", format.ContentType())
	h.Set("X-Run-ID", res.RunID)
	h.Set("X-Retrieval-Status", string(res.Status))
	h.Set("X-Total-Count", strconv.Itoa(res.Total))
	w.WriteHeader(http.StatusOK)

	if err := res.Table.Write(w, format); err != nil {
		s.logger.Error().Err(err).Str("run_id", res.RunID).Msg("Failed to write table")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// accessLog logs one event per request.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
