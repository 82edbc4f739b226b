// Package observability provides structured logging and OpenTelemetry tracing.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/delve/internal/config"
)

// LoggerName is the root name every delve logger is created under.
const LoggerName = "delve"

// NewLogger builds the root logger described by cfg. The json format uses
// zap's production settings and console its development settings; both
// stamp ISO8601 times and keep stack traces for errors only.
//
// Precondition: cfg.Level is one of "debug", "info", "warn", "error" and
// cfg.Format is "json" or "console".
// Postcondition: Returns a logger named LoggerName or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	zapCfg, err := baseConfig(cfg.Format)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.NameKey = "component"

	logger, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Named(LoggerName), nil
}

func baseConfig(format string) (zap.Config, error) {
	switch format {
	case "json":
		return zap.NewProductionConfig(), nil
	case "console":
		c := zap.NewDevelopmentConfig()
		c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return c, nil
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", format)
	}
}

// WithSpan returns logger annotated with the trace and span ids of the span
// in ctx, so log lines can be joined to traces. It returns logger unchanged
// when ctx carries no valid span.
func WithSpan(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
