package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mailtriage/pkg/trace"
)

// New builds the process-wide logger. Production mode (JSON, info
// level) unless MAILTRIAGE_ENV=local, which switches to a human
// readable console encoder.
func New() *zap.Logger {
	if os.Getenv("MAILTRIAGE_ENV") == "local" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		return l
	}

	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace attaches the correlation id carried by ctx, if any, to logger.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := trace.FromContext(ctx); id != "" {
		return logger.With(zap.String("trace_id", id))
	}
	return logger
}
