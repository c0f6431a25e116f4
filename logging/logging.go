// Package logging builds the zap loggers used across the coordinator.
// Every component accepts a *zap.Logger and defaults to zap.NewNop, so
// hosts that bring their own logger never touch this package.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger at the given level. pretty switches to the
// development console encoder for local runs.
func New(level string, pretty bool) (*zap.Logger, error) {
	var cfg zap.Config
	if pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := cfg.Build(zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return log, nil
}

// Nop returns a no-op logger; the default everywhere a logger is optional.
func Nop() *zap.Logger {
	return zap.NewNop()
}
