package weave

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/weave/internal/engine"
	"github.com/wippyai/il-weaver/weave/internal/hooks"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the weave package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the weave package's logger and the loggers of the
// weaving stages beneath it.
// This must be called before calling Weave.
func SetLogger(l *zap.Logger) {
	logger = l
	engine.SetLogger(l.Named("engine"))
	hooks.SetLogger(l.Named("hooks"))
}
