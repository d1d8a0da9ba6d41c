// Package logging builds the process-wide zap logger from LOG_LEVEL and
// adapts it to logr.Logger for components (primarily the Kubernetes client
// plumbing) that expect the vendor-neutral logr shape.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for the given level ("debug", "info",
// "warn", "error") and output format ("json" or "console"). Unknown levels
// default to info.
func New(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// AsLogr adapts a zap.Logger into a logr.Logger, named for the component
// that owns it (e.g. "k8sadapter", "aggregator").
func AsLogr(z *zap.Logger, component string) logr.Logger {
	return zapr.NewLogger(z).WithName(component)
}
