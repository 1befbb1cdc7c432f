package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production ready structured logger. LOG_LEVEL overrides
// the default info level.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var parsed zapcore.Level
		if err := parsed.Set(level); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	return cfg.Build()
}

// WithOperation enriches the logger with operation and scan identifiers.
func WithOperation(logger *zap.Logger, operation, scanID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if scanID != "" {
		fields = append(fields, zap.String("scan_id", scanID))
	}
	return logger.With(fields...)
}
