/*
Package logger builds the structured loggers used across the service.

USAGE:
  log := logger.New(logger.Options{Level: "debug", Pretty: true})
  ctx = logger.WithContext(ctx, log.With().Str("request_id", id).Logger())
  log = logger.FromContext(ctx)
  log.Info().Msg("payment verified")

Handlers pull the request-scoped logger out of the context; background jobs
are handed a logger explicitly.
*/
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const loggerKey contextKey = "logger"

// Options controls the root logger.
type Options struct {
	Level  string // zerolog level name; empty means info
	Pretty bool   // human-readable console output instead of JSON
}

// New creates the root logger writing to stdout.
func New(opts Options) zerolog.Logger {
	var out io.Writer = os.Stdout
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out).Level(ParseLevel(opts.Level))
}

// NewWithWriter creates a logger with a custom writer.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// ParseLevel falls back to info for empty or unknown names.
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithContext adds the logger to the context.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context, or a disabled logger
// when none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}
