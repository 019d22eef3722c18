package pipeline

import (
	"context"
	"time"

	"github.com/skylens/weathercard/common/logger"
)

// StaleRunStore fails abandoned running rows
type StaleRunStore interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Watchdog periodically fails runs stuck in status running. A run only
// stays running forever when its process died mid-flight and nothing
// resumed it; without this sweep such rows would look in-flight to
// readers indefinitely.
type Watchdog struct {
	store    StaleRunStore
	timeout  time.Duration
	interval time.Duration
	log      *logger.Logger
}

// NewWatchdog creates a watchdog
func NewWatchdog(store StaleRunStore, timeout, interval time.Duration, log *logger.Logger) *Watchdog {
	return &Watchdog{
		store:    store,
		timeout:  timeout,
		interval: interval,
		log:      log,
	}
}

// Start runs the sweep loop until the context is cancelled. Call in a
// goroutine.
func (w *Watchdog) Start(ctx context.Context) {
	w.log.Info("watchdog started",
		"stale_timeout", w.timeout,
		"interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	n, err := w.store.FailStale(ctx, w.timeout)
	if err != nil {
		w.log.Error("stale run sweep failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Warn("failed stale runs", "count", n)
	}
}
