package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/peerprep/internal/history"
	"github.com/gokatarajesh/peerprep/internal/metrics"
	"github.com/gokatarajesh/peerprep/internal/question"
	"github.com/gokatarajesh/peerprep/pkg/http/ws"
)

const (
	defaultIdleTimeout    = 30 * time.Minute
	defaultInitTimeout    = 15 * time.Second
	defaultHistoryTimeout = 5 * time.Second

	// IdleCloseReason is the close-frame reason sent to evicted connections.
	IdleCloseReason = "idle timeout"
)

// Options tunes a Coordinator; zero values pick the defaults.
type Options struct {
	IdleTimeout time.Duration
	// InitTimeout bounds the whole question fallback chain for one room.
	InitTimeout time.Duration
	Now         func() time.Time
	History     HistoryRecorder
	Sessions    SessionReleaser
}

// Coordinator owns the state of every live collaboration room. Rooms are
// created on first join and discarded when their last participant leaves.
type Coordinator struct {
	provider    QuestionProvider
	notifier    Notifier
	history     HistoryRecorder
	sessions    SessionReleaser
	idleTimeout time.Duration
	initTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu       sync.Mutex
	rooms    map[string]*room
	conns    map[string]string    // connection_id -> room_id
	activity map[string]time.Time // connection_id -> last inbound message

	flights singleflight.Group
}

// NewCoordinator creates a room coordinator.
func NewCoordinator(provider QuestionProvider, notifier Notifier, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		provider:    provider,
		notifier:    notifier,
		history:     opts.History,
		sessions:    opts.Sessions,
		idleTimeout: opts.IdleTimeout,
		initTimeout: opts.InitTimeout,
		now:         opts.Now,
		logger:      logger.With().Str("component", "collab_coordinator").Logger(),
		rooms:       make(map[string]*room),
		conns:       make(map[string]string),
		activity:    make(map[string]time.Time),
	}
}

// Join registers p in roomID, resolves the room's question and announces the
// new roster to everyone else in the room. A connection already in another
// room leaves it first.
func (c *Coordinator) Join(ctx context.Context, roomID string, p Participant, topic, difficulty string) (JoinResult, error) {
	if roomID == "" {
		return JoinResult{}, ErrMissingRoomID
	}

	now := c.now()
	c.mu.Lock()
	var (
		prev    departure
		hadPrev bool
	)
	if current, ok := c.conns[p.ConnectionID]; ok && current != roomID {
		prev, hadPrev = c.leaveLocked(p.ConnectionID)
	}
	r, ok := c.rooms[roomID]
	if !ok {
		r = newRoom(roomID, topic, difficulty)
		c.rooms[roomID] = r
		metrics.ActiveRooms.Set(float64(len(c.rooms)))
		c.logger.Info().Str("room_id", roomID).Str("topic", topic).Str("difficulty", difficulty).Msg("room created")
	}
	p.RoomID = roomID
	p.JoinedAt = now
	p.LastActivityAt = now
	r.add(&p)
	c.conns[p.ConnectionID] = roomID
	c.activity[p.ConnectionID] = now
	c.mu.Unlock()

	if hadPrev {
		c.afterLeave(prev)
	}

	q := c.EnsureQuestion(ctx, roomID, r.topic, r.difficulty)

	c.mu.Lock()
	defer c.mu.Unlock()

	res := JoinResult{Question: q, Participants: []ws.Participant{}}
	current := c.rooms[roomID]
	if current == nil || current.members[p.ConnectionID] == nil {
		// Left again while the question was resolving.
		return res, nil
	}
	res.Code = current.code
	res.Participants = current.roster()
	c.broadcastLocked(current, ws.TypePresenceUpdate, ws.PresenceUpdatePayload{
		RoomID:       roomID,
		Participants: res.Participants,
	}, p.ConnectionID)

	c.logger.Info().
		Str("room_id", roomID).
		Str("user_id", p.UserID).
		Str("connection_id", p.ConnectionID).
		Int("participants", len(current.members)).
		Msg("participant joined room")
	return res, nil
}

// EnsureQuestion returns the room's question, fetching it at most once per
// room no matter how many callers arrive while the fetch is in flight.
func (c *Coordinator) EnsureQuestion(ctx context.Context, roomID, topic, difficulty string) question.Question {
	c.mu.Lock()
	target := c.rooms[roomID]
	if target != nil && target.question != nil {
		q := *target.question
		c.mu.Unlock()
		return q
	}
	c.mu.Unlock()

	ch := c.flights.DoChan(roomID, func() (any, error) {
		c.mu.Lock()
		if target != nil && target.question != nil {
			q := *target.question
			c.mu.Unlock()
			return q, nil
		}
		c.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.initTimeout)
		defer cancel()

		q := c.resolve(fetchCtx, roomID, topic, difficulty)

		c.mu.Lock()
		defer c.mu.Unlock()
		if target != nil && c.rooms[roomID] == target && target.question == nil {
			stored := q
			target.question = &stored
			target.initializedAt = c.now()
			c.logger.Info().Str("room_id", roomID).Str("question_id", q.ID).Str("title", q.Title).Msg("room question ready")
		}
		return q, nil
	})

	select {
	case res := <-ch:
		return res.Val.(question.Question)
	case <-ctx.Done():
		return placeholderQuestion(topic, difficulty)
	}
}

// resolve walks the fallback chain, ending in a placeholder. The placeholder
// is stored like any other result so every member sees the same question.
func (c *Coordinator) resolve(ctx context.Context, roomID, topic, difficulty string) question.Question {
	for i, criteria := range fallbackChain(topic, difficulty) {
		if ctx.Err() != nil {
			break
		}
		q, err := c.provider.Random(ctx, criteria)
		if err != nil {
			ev := c.logger.Warn()
			if errors.Is(err, question.ErrNotFound) {
				ev = c.logger.Debug()
			}
			ev.Err(err).
				Str("room_id", roomID).
				Str("topic", criteria.Topic).
				Str("difficulty", criteria.Difficulty).
				Msg("question fetch attempt failed")
			continue
		}

		outcome := metrics.OutcomeExact
		if i > 0 {
			outcome = metrics.OutcomeFallback
		}
		metrics.QuestionFetches.WithLabelValues(outcome).Inc()
		return q
	}

	metrics.QuestionFetches.WithLabelValues(metrics.OutcomePlaceholder).Inc()
	c.logger.Error().Str("room_id", roomID).Str("topic", topic).Str("difficulty", difficulty).Msg("every question fetch failed, using placeholder")
	return placeholderQuestion(topic, difficulty)
}

// fallbackChain lists topic+difficulty, topic, difficulty, then no filter,
// skipping repeats caused by empty fields.
func fallbackChain(topic, difficulty string) []question.Criteria {
	candidates := []question.Criteria{
		{Topic: topic, Difficulty: difficulty},
		{Topic: topic},
		{Difficulty: difficulty},
		{},
	}
	seen := make(map[question.Criteria]struct{}, len(candidates))
	chain := make([]question.Criteria, 0, len(candidates))
	for _, cr := range candidates {
		if _, dup := seen[cr]; dup {
			continue
		}
		seen[cr] = struct{}{}
		chain = append(chain, cr)
	}
	return chain
}

// PlaceholderID marks a question synthesized after every fetch failed.
const PlaceholderID = "placeholder"

func placeholderQuestion(topic, difficulty string) question.Question {
	return question.Question{
		ID:    PlaceholderID,
		Title: "Question unavailable",
		Description: fmt.Sprintf(
			"No question could be loaded for topic %q and difficulty %q because the question service did not respond with one. "+
				"Pick a problem together with your partner, or rejoin the room to try again.",
			topic, difficulty),
		Topic:      topic,
		Difficulty: difficulty,
	}
}

// ApplyCodeChange replaces the room's code and relays it to every other
// participant. The newest write always wins.
func (c *Coordinator) ApplyCodeChange(roomID, senderConnectionID, code string, clientTs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.rooms[roomID]
	if r == nil {
		return ErrNotInRoom
	}
	sender, ok := r.members[senderConnectionID]
	if !ok {
		return ErrNotInRoom
	}

	now := c.now()
	r.code = code
	r.codeUpdatedAt = now
	sender.LastActivityAt = now
	c.activity[senderConnectionID] = now

	c.broadcastLocked(r, ws.TypeCodespaceChange, ws.CodespaceBroadcastPayload{
		Code:      code,
		UpdatedAt: now.UnixMilli(),
		ClientTs:  clientTs,
	}, senderConnectionID)
	return nil
}

// Leave removes the connection from its room. Returns false when the
// connection was not in a room.
func (c *Coordinator) Leave(connectionID string) bool {
	c.mu.Lock()
	d, ok := c.leaveLocked(connectionID)
	c.mu.Unlock()

	if ok {
		c.afterLeave(d)
	}
	return ok
}

// Disconnect leaves any room and forgets the connection entirely.
func (c *Coordinator) Disconnect(connectionID string) {
	c.Leave(connectionID)

	c.mu.Lock()
	delete(c.activity, connectionID)
	c.mu.Unlock()
}

// RoomOf returns the room the connection is in.
func (c *Coordinator) RoomOf(connectionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roomID, ok := c.conns[connectionID]
	return roomID, ok
}

type departure struct {
	participant Participant
	lastOfUser  bool
	record      *history.Record
}

func (c *Coordinator) leaveLocked(connectionID string) (departure, bool) {
	roomID, ok := c.conns[connectionID]
	if !ok {
		return departure{}, false
	}
	delete(c.conns, connectionID)

	r := c.rooms[roomID]
	if r == nil {
		return departure{}, false
	}
	p := r.remove(connectionID)
	if p == nil {
		return departure{}, false
	}

	d := departure{participant: *p, lastOfUser: !r.hasUser(p.UserID)}
	if d.lastOfUser && r.question != nil && r.question.ID != PlaceholderID {
		d.record = &history.Record{
			UserID:            p.UserID,
			Title:             r.question.Title,
			Topic:             r.question.Topic,
			Difficulty:        r.question.Difficulty,
			Description:       r.question.Description,
			SubmittedSolution: r.code,
			Date:              c.now(),
		}
	}

	if len(r.members) == 0 {
		delete(c.rooms, roomID)
		c.flights.Forget(roomID)
		metrics.ActiveRooms.Set(float64(len(c.rooms)))
		c.logger.Info().Str("room_id", roomID).Msg("room empty, discarded")
	} else {
		c.broadcastLocked(r, ws.TypePresenceUpdate, ws.PresenceUpdatePayload{
			RoomID:       roomID,
			Participants: r.roster(),
		}, "")
	}

	c.logger.Info().
		Str("room_id", roomID).
		Str("user_id", p.UserID).
		Str("connection_id", connectionID).
		Msg("participant left room")
	return d, true
}

func (c *Coordinator) afterLeave(d departure) {
	if !d.lastOfUser {
		return
	}
	if c.sessions != nil {
		c.sessions.ReleaseSession(d.participant.UserID, d.participant.RoomID)
	}
	if c.history != nil && d.record != nil {
		go c.recordHistory(*d.record)
	}
}

func (c *Coordinator) recordHistory(rec history.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultHistoryTimeout)
	defer cancel()

	if err := c.history.Record(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("failed to record session history")
	}
}

// Touch marks the connection as active now.
func (c *Coordinator) Touch(connectionID string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.activity[connectionID] = now
	if roomID, ok := c.conns[connectionID]; ok {
		if r := c.rooms[roomID]; r != nil {
			if p := r.members[connectionID]; p != nil {
				p.LastActivityAt = now
			}
		}
	}
}

// EvictIdle notifies and closes every connection silent for longer than the
// idle timeout. Closing the socket runs the normal disconnect path.
func (c *Coordinator) EvictIdle(now time.Time) int {
	c.mu.Lock()
	var idle []string
	for id, last := range c.activity {
		if now.Sub(last) > c.idleTimeout {
			idle = append(idle, id)
			delete(c.activity, id)
		}
	}
	c.mu.Unlock()

	for _, id := range idle {
		msg, err := ws.NewMessage(ws.TypeIdleDisconnect, ws.IdleDisconnectPayload{
			Reason: fmt.Sprintf("Disconnected after %s without activity", c.idleTimeout),
		})
		if err == nil {
			if err := c.notifier.Send(id, msg); err != nil {
				c.logger.Debug().Err(err).Str("connection_id", id).Msg("idle notice not delivered")
			}
		}
		c.notifier.Close(id, IdleCloseReason)
		metrics.IdleEvictions.Inc()
		c.logger.Info().Str("connection_id", id).Dur("idle_timeout", c.idleTimeout).Msg("evicted idle connection")
	}
	return len(idle)
}

// Snapshot copies the room's current state.
func (c *Coordinator) Snapshot(roomID string) (RoomSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[roomID]
	if !ok {
		return RoomSnapshot{}, false
	}
	snap := RoomSnapshot{
		RoomID:        r.id,
		Code:          r.code,
		CodeUpdatedAt: r.codeUpdatedAt,
		InitializedAt: r.initializedAt,
		Participants:  r.roster(),
	}
	if r.question != nil {
		q := *r.question
		snap.Question = &q
	}
	return snap, true
}

// RoomCount returns the number of live rooms.
func (c *Coordinator) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// broadcastLocked sends to every member except exclude in join order. Sends
// only enqueue, so holding the lock keeps per-room delivery ordered.
func (c *Coordinator) broadcastLocked(r *room, msgType string, payload any, exclude string) {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("type", msgType).Msg("failed to encode broadcast")
		return
	}
	for _, id := range r.order {
		if id == exclude {
			continue
		}
		if err := c.notifier.Send(id, msg); err != nil {
			c.logger.Warn().Err(err).Str("room_id", r.id).Str("connection_id", id).Str("type", msgType).Msg("broadcast delivery failed")
		}
	}
}
