package match

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryWorker periodically removes stale match requests so the queue
// shrinks even when nobody new arrives.
type ExpiryWorker struct {
	svc      *Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewExpiryWorker sweeps every interval, 10s when unset.
func NewExpiryWorker(svc *Service, interval time.Duration, logger zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ExpiryWorker{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "match_expiry_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.svc.ExpireStale()
		}
	}
}
