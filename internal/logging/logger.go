// Package logging provides zap logger helpers and the bounded
// recent-entries buffer exposed to operators.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewWithRecent builds a logger as New does and tees every entry into a
// RecentBuffer of the given capacity so the API can serve the last N
// log lines without a durable sink.
func NewWithRecent(development bool, capacity int) (*zap.Logger, *RecentBuffer, error) {
	base, err := New(development)
	if err != nil {
		return nil, nil, err
	}
	buf := NewRecentBuffer(capacity)
	logger := base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, buf)
	}))
	return logger, buf, nil
}
