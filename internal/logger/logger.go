// Package logger configures the process-wide zerolog logger and carries
// trace IDs through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Config selects level and output format.
type Config struct {
	Level  string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" json:"format" default:"json" validate:"oneof=json console"`
}

// Init builds a logger for service, installs it as log.Logger and returns it.
// Output goes to stdout.
func Init(service string, cfg Config) (zerolog.Logger, error) {
	return InitWriter(os.Stdout, service, cfg)
}

// InitWriter is Init with an explicit writer.
func InitWriter(w io.Writer, service string, cfg Config) (zerolog.Logger, error) {
	lvlName := cfg.Level
	if lvlName == "" {
		lvlName = "info"
	}
	level, err := zerolog.ParseLevel(lvlName)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Logger()
	log.Logger = l
	return l, nil
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a symbol and timestamp.
// Format: "{symbol}-{unixNano}".
func GenerateTraceID(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, ts.UnixNano())
}

// Ctx returns the global logger with the context's trace ID attached.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if tid := TraceID(ctx); tid != "" {
		l = l.With().Str("trace_id", tid).Logger()
	}
	return &l
}
