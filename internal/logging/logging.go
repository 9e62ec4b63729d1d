// Package logging holds the process-wide zap logger.
//
// By default nothing is logged. The command wires a real logger with Set;
// components that were not handed a logger fall back to L.
package logging

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// L returns the current logger. It is safe for concurrent use.
func L() *zap.Logger {
	return current.Load()
}

// Set replaces the process-wide logger. Passing nil restores the silent
// default.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// Or returns l, or the process-wide logger when l is nil.
func Or(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return L()
}

// New builds a logger writing to stderr at the named level ("debug", "info",
// "warn", "error"). stdout is reserved for the JSON-RPC stream.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
