// Package observability bootstraps the telemetry of the SDK process:
// structured logging and, when enabled, OpenTelemetry tracing exported over
// OTLP gRPC.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/config"
)

// NewLogger builds the process-wide zerolog logger from config. Unknown
// levels fall back to info; LOG_PRETTY switches to the human console writer
// for development.
func NewLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
