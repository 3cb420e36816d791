// Package log builds the shared zap.Logger used by every component. There
// is deliberately no package-level singleton: callers construct a logger
// here and pass it down explicitly, per the Design Notes' instruction to
// recast process-wide logging singletons as constructor dependencies.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode selects the encoder/level profile.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// New builds a *zap.Logger for the given mode and minimum level.
func New(mode Mode, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch mode {
	case ModeDevelopment:
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// NewNop returns a logger that discards everything, for tests that don't
// assert on log output.
func NewNop() *zap.Logger { return zap.NewNop() }
