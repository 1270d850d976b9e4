package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger based on level/format settings.
// Format "json" yields production encoding; anything else gets the
// human-readable console encoder used during interactive runs.
func NewLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(strings.ToLower(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}

// ForRun decorates a logger with the identifiers every training-run
// message should carry.
func ForRun(base *zap.Logger, runName, sweepID string) *zap.Logger {
	fields := []zap.Field{zap.String("run", runName)}
	if sweepID != "" {
		fields = append(fields, zap.String("sweep", sweepID))
	}
	return base.With(fields...)
}
