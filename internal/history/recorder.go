package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/metrics"
)

type recordStore interface {
	Insert(ctx context.Context, rec Record) error
}

// Recorder listens for published history records and persists them.
type Recorder struct {
	redis   *redis.Client
	store   recordStore
	channel string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRecorder creates a Pub/Sub powered history recorder.
func NewRecorder(redis *redis.Client, store recordStore, channel string, logger zerolog.Logger) *Recorder {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Recorder{
		redis:   redis,
		store:   store,
		channel: channel,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "history_recorder").Logger(),
	}
}

// Run subscribes to the record channel and blocks until the context is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	if r.redis == nil || r.store == nil {
		return nil
	}

	sub := r.redis.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.persist(ctx, msg.Payload)
		}
	}
}

func (r *Recorder) persist(ctx context.Context, payload string) {
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		metrics.HistoryWrites.WithLabelValues("decode_error").Inc()
		r.logger.Warn().Err(err).Msg("failed to decode history record")
		return
	}
	if rec.UserID == "" {
		metrics.HistoryWrites.WithLabelValues("decode_error").Inc()
		r.logger.Warn().Msg("history record without user id dropped")
		return
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}

	insertCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.Insert(insertCtx, rec); err != nil {
		metrics.HistoryWrites.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("failed to persist history record")
		return
	}
	metrics.HistoryWrites.WithLabelValues("ok").Inc()
	r.logger.Debug().Str("user_id", rec.UserID).Str("title", rec.Title).Msg("history record stored")
}
