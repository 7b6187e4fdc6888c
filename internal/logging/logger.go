package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds a structured logger. In "debug" mode it uses the
// development config with console output; everything else gets the
// production JSON encoder.
func NewLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	return cfg.Build()
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}

// WithStage enriches the logger with the name of a pipeline stage.
func WithStage(logger *zap.Logger, stage, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("stage", stage)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
