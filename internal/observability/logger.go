package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field represents a structured log field.
type Field = zap.Field

// NewLogger builds a zap logger. format is "json" (default) or "text".
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "text" || format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// FromContext returns logger annotated with the request id set by
// chi's RequestID middleware, when present.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return logger.With(zap.String("request_id", reqID))
	}
	return logger
}
