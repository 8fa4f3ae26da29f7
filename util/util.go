// Package util has small things that several packages share.
package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OrNop returns the given logger or, if that's nil, a logger that
// discards everything.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// NewLogger makes a console logger.  When verbose is true, debug
// logging is on.
func NewLogger(verbose bool) (*zap.Logger, error) {
	conf := zap.NewDevelopmentConfig()
	conf.DisableStacktrace = true
	conf.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		conf.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return conf.Build()
}
