package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	// Enabled turns on debug level span and metric log lines.
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup wires the span and metric log hooks.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] span logging enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] span logging disabled")
		}
	}
	return func(context.Context) error {
		loggerMu.Lock()
		instrumentationLog = nil
		instrumentationState = Config{}
		loggerMu.Unlock()
		return nil
	}, nil
}
