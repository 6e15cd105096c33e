package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// Logger returns the process-wide logger, building an info-level production
// logger on first use. Init may be called earlier to pick a different level.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = build(zapcore.InfoLevel)
	}
	return logger
}

// Init configures the process-wide logger with the given level name.
// Unknown names fall back to info.
func Init(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	mu.Lock()
	logger = build(lvl)
	mu.Unlock()
}

func build(lvl zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
