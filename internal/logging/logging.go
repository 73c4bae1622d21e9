// Package logging builds the zap logger of the relay and adapts it to ecsync.Logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/velmie/ecsync"
)

// New returns a production JSON logger at level, tagged with appName.
func New(level, appName string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}

	return logger.With(zap.String("appName", appName)), nil
}

// Adapter implements ecsync.Logger on a sugared zap logger.
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ ecsync.Logger = (*Adapter)(nil)

// NewAdapter wraps logger.
func NewAdapter(logger *zap.Logger) *Adapter {
	return &Adapter{sugar: logger.Sugar()}
}

// Debug implements ecsync.Logger.
func (a *Adapter) Debug(msg string, args ...any) { a.sugar.Debugw(msg, args...) }

// Info implements ecsync.Logger.
func (a *Adapter) Info(msg string, args ...any) { a.sugar.Infow(msg, args...) }

// Warn implements ecsync.Logger.
func (a *Adapter) Warn(msg string, args ...any) { a.sugar.Warnw(msg, args...) }

// Error implements ecsync.Logger.
func (a *Adapter) Error(msg string, args ...any) { a.sugar.Errorw(msg, args...) }
