package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/match/queue"
	"github.com/gokatarajesh/peerprep/internal/metrics"
)

// Service validates find-match requests and drives the queue.
type Service struct {
	queueMgr   *queue.Manager
	staleAfter time.Duration
	logger     zerolog.Logger
}

// ServiceOptions configures the match service.
type ServiceOptions struct {
	StaleAfter time.Duration
}

// NewService creates a match service around a queue manager.
func NewService(queueMgr *queue.Manager, opts ServiceOptions, logger zerolog.Logger) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	return &Service{
		queueMgr:   queueMgr,
		staleAfter: opts.StaleAfter,
		logger:     logger,
	}
}

// FindMatch pairs the caller with a compatible waiting request or queues it.
// A nil pairing with a nil error means the request is now waiting.
func (s *Service) FindMatch(ctx context.Context, c Criteria, connectionID string) (*queue.Pairing, error) {
	difficulties := normalize(c.Difficulties)
	topics := normalize(c.Topics)
	if c.UserID == "" || len(difficulties) == 0 || len(topics) == 0 {
		metrics.MatchRejections.WithLabelValues("invalid_criteria").Inc()
		return nil, fmt.Errorf("%w: need a user, at least one difficulty and one topic", ErrInvalidCriteria)
	}

	pairing, err := s.queueMgr.Submit(queue.Request{
		UserID:       c.UserID,
		Email:        c.Email,
		Difficulties: difficulties,
		Topics:       topics,
		ConnectionID: connectionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrAlreadyInSession):
			metrics.MatchRejections.WithLabelValues("already_in_session").Inc()
		case errors.Is(err, queue.ErrAlreadyQueued):
			metrics.MatchRejections.WithLabelValues("already_queued").Inc()
		}
		s.logger.Info().Err(err).Str("user_id", c.UserID).Msg("find_match rejected")
		return nil, err
	}
	metrics.QueueDepth.Set(float64(s.queueMgr.Len()))

	if pairing != nil {
		metrics.MatchesTotal.Inc()
		s.logger.Info().
			Str("room_id", pairing.Match.RoomID).
			Str("user1", pairing.Match.User1.UserID).
			Str("user2", pairing.Match.User2.UserID).
			Strs("difficulties", pairing.Match.Difficulties).
			Strs("topics", pairing.Match.Topics).
			Msg("match found")
	}
	return pairing, nil
}

// Cancel withdraws the user's pending request. Idempotent.
func (s *Service) Cancel(userID string) bool {
	removed := s.queueMgr.Cancel(userID)
	metrics.QueueDepth.Set(float64(s.queueMgr.Len()))
	return removed
}

// LeaveSession releases the user's active-session binding. Idempotent.
func (s *Service) LeaveSession(userID string) (string, bool) {
	roomID, ok := s.queueMgr.ActiveRoom(userID)
	if !s.queueMgr.ClearActiveSession(userID) {
		return "", false
	}
	s.logger.Info().Str("user_id", userID).Str("room_id", roomID).Msg("session left")
	return roomID, ok
}

// ReleaseSession frees the user's binding to roomID once they have left it.
func (s *Service) ReleaseSession(userID, roomID string) bool {
	if !s.queueMgr.ReleaseSession(userID, roomID) {
		return false
	}
	s.logger.Info().Str("user_id", userID).Str("room_id", roomID).Msg("session released after leaving room")
	return true
}

// Disconnect purges requests orphaned by a closed connection.
func (s *Service) Disconnect(connectionID string) int {
	removed := s.queueMgr.RemoveByConnection(connectionID)
	if removed > 0 {
		metrics.QueueDepth.Set(float64(s.queueMgr.Len()))
		s.logger.Info().Str("connection_id", connectionID).Int("removed", removed).Msg("purged requests for closed connection")
	}
	return removed
}

// ExpireStale drops requests older than the configured threshold.
func (s *Service) ExpireStale() int {
	removed := s.queueMgr.ExpireStale(s.staleAfter)
	metrics.QueueDepth.Set(float64(s.queueMgr.Len()))
	if removed > 0 {
		metrics.ExpiredRequests.Add(float64(removed))
		s.logger.Info().Int("removed", removed).Int("queue_length", s.queueMgr.Len()).Msg("expired stale match requests")
	}
	return removed
}

// QueueLength returns the number of waiting requests.
func (s *Service) QueueLength() int {
	return s.queueMgr.Len()
}

// Position returns the user's place in the queue, or -1.
func (s *Service) Position(userID string) int {
	return s.queueMgr.Position(userID)
}

// ActiveRoom returns the room the user is bound to.
func (s *Service) ActiveRoom(userID string) (string, bool) {
	return s.queueMgr.ActiveRoom(userID)
}
