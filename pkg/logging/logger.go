// Package logging configures zerolog for the RePORTER client and CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used in the "component" field.
const (
	ComponentClient    = "reporter-client"
	ComponentRetriever = "retriever"
	ComponentPacer     = "pacer"
	ComponentCLI       = "cli"
	ComponentServer    = "server"
)

// Config holds logger configuration.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr so table output on stdout stays clean.
	Output io.Writer

	// Service, when set, is added to every event.
	Service string
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
	}
}

// ParseLevel converts a level name to a zerolog.Level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Setup configures the global zerolog logger and returns it. An unknown level
// is an error and leaves the global logger unchanged.
func Setup(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return log.Logger, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()
	log.Logger = logger

	return logger, nil
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: one event per search request (offset, payload size, result count)
// and per pacer wait.
//
// Info: retrieval start (total, page size, max pages), page progress
// (records so far / total), retrieval complete, server startup/shutdown.
//
// Warn: malformed single-key page that stopped a retrieval, Redis pacing
// unavailable (local fallback).
//
// Error: failed search requests, failed retrievals, configuration errors.
//
// Context Fields:
//   - run_id: retrieval identifier
//   - offset: page offset (-1 for the count request)
//   - status: HTTP status code
//   - error_class: client, server, network, decode, schema
//   - total, records, page_size, max_pages: retrieval progress
