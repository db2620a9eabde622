// Package logging configures zerolog for the gateway.
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

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentClient       = "gateway-client"
	ComponentGuard        = "guard"
	ComponentInvalidation = "invalidation"
	ComponentOrders       = "orders"
	ComponentProxy        = "gateway-proxy"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// ParseLevel converts a level name, rejecting unknown values.
func ParseLevel(s string) (LogLevel, error) {
	if !ValidLevel(s) {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	if strings.EqualFold(s, "warning") {
		return LevelWarn, nil
	}
	return LogLevel(strings.ToLower(s)), nil
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - attempts, cache reads and writes, sink acknowledgements
//   - guard decisions that allowed access
//
// Info: normal operation
//   - completed mutations, subscriptions, server startup and shutdown
//   - expired sessions (expected, the caller re-authenticates)
//
// Warn: degraded but served
//   - 5xx retries, timeouts answered from the fallback cache
//   - failed invalidation sinks, denied ownership checks
//
// Error: needs attention
//   - retry budget exhausted, missing backend credentials
//   - configuration errors
//
// Context Fields:
//   - component: see the Component constants
//   - method, url / path: backend request
//   - status: backend HTTP status
//   - code, reason: failure classification
//   - attempt, retry, backoff: retry loop state
//   - tags, sink: invalidation
//   - user_id, vendor_id, owner_id: guard decisions
//
// The backend API secret and the Authorization header are never logged.
