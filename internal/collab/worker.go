package collab

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// IdleWorker periodically evicts connections that stopped sending messages.
type IdleWorker struct {
	coord    *Coordinator
	interval time.Duration
	logger   zerolog.Logger
}

// NewIdleWorker sweeps every interval, one minute when unset.
func NewIdleWorker(coord *Coordinator, interval time.Duration, logger zerolog.Logger) *IdleWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IdleWorker{
		coord:    coord,
		interval: interval,
		logger:   logger.With().Str("component", "collab_idle_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *IdleWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := w.coord.EvictIdle(w.coord.now()); n > 0 {
				w.logger.Info().Int("evicted", n).Msg("idle sweep finished")
			}
		}
	}
}
