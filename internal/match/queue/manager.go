package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyQueued is returned when the user already has a pending request
	// from another connection.
	ErrAlreadyQueued = errors.New("user already queued")
	// ErrAlreadyInSession is returned when the user is bound to an active room.
	ErrAlreadyInSession = errors.New("user already in an active session")
)

// Manager holds pending match requests in arrival order plus the active
// session map. A user is never in both at once.
type Manager struct {
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
	mu      sync.Mutex
	waiting []*Request
	active  map[string]string // user_id -> room_id
}

// Options tunes a Manager; zero values pick the defaults.
type Options struct {
	Now       func() time.Time
	NewRoomID func() string
}

// NewManager creates a matchmaking queue manager.
func NewManager(logger zerolog.Logger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRoomID == nil {
		opts.NewRoomID = uuid.NewString
	}
	return &Manager{
		logger: logger,
		now:    opts.Now,
		newID:  opts.NewRoomID,
		active: make(map[string]string),
	}
}

// Enqueue appends a request to the back of the queue.
func (m *Manager) Enqueue(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[req.UserID]; ok {
		return ErrAlreadyInSession
	}
	if m.indexOfUser(req.UserID) >= 0 {
		return ErrAlreadyQueued
	}
	m.enqueueLocked(req)
	return nil
}

// FindMatch removes and pairs the first queued request overlapping req on
// both difficulty and topic. req itself is not queued.
func (m *Manager) FindMatch(req Request) (*Pairing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairing := m.findMatchLocked(req)
	return pairing, pairing != nil
}

// Submit is the find-or-enqueue step of a find_match request. A repeat
// request from the same connection replaces the stale entry; one from a
// different connection is rejected. When a partner is found both users are
// bound to the new room before the lock is released.
func (m *Manager) Submit(req Request) (*Pairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[req.UserID]; ok {
		return nil, ErrAlreadyInSession
	}
	if idx := m.indexOfUser(req.UserID); idx >= 0 {
		if m.waiting[idx].ConnectionID != req.ConnectionID {
			return nil, ErrAlreadyQueued
		}
		m.removeAt(idx)
	}

	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = m.now()
	}

	if pairing := m.findMatchLocked(req); pairing != nil {
		m.active[pairing.Match.User1.UserID] = pairing.Match.RoomID
		m.active[pairing.Match.User2.UserID] = pairing.Match.RoomID
		return pairing, nil
	}

	m.enqueueLocked(req)
	return nil, nil
}

// Cancel removes the user's pending request. Returns false if none existed.
func (m *Manager) Cancel(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOfUser(userID)
	if idx < 0 {
		return false
	}
	m.removeAt(idx)
	m.logger.Info().Str("user_id", userID).Int("queue_length", len(m.waiting)).Msg("match request cancelled")
	return true
}

// RemoveByConnection drops every request submitted over connectionID.
func (m *Manager) RemoveByConnection(connectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.filterLocked(func(r *Request) bool { return r.ConnectionID != connectionID })
}

// ExpireStale drops requests older than maxAge.
func (m *Manager) ExpireStale(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	return m.filterLocked(func(r *Request) bool { return now.Sub(r.SubmittedAt) <= maxAge })
}

// MarkActiveSession binds userID to roomID and drops any pending request.
func (m *Manager) MarkActiveSession(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := m.indexOfUser(userID); idx >= 0 {
		m.removeAt(idx)
	}
	m.active[userID] = roomID
}

// ClearActiveSession releases the user's room binding. Idempotent.
func (m *Manager) ClearActiveSession(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[userID]; !ok {
		return false
	}
	delete(m.active, userID)
	return true
}

// ReleaseSession clears the user's binding only if it still points at roomID,
// so a stale room cannot release a newer match.
func (m *Manager) ReleaseSession(userID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[userID]; !ok || current != roomID {
		return false
	}
	delete(m.active, userID)
	return true
}

// IsActive reports whether the user is bound to a room.
func (m *Manager) IsActive(userID string) bool {
	_, ok := m.ActiveRoom(userID)
	return ok
}

// ActiveRoom returns the room the user is bound to.
func (m *Manager) ActiveRoom(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.active[userID]
	return roomID, ok
}

// IsQueued reports whether the user has a pending request.
func (m *Manager) IsQueued(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOfUser(userID) >= 0
}

// Len returns the number of pending requests.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// Position returns the user's queue position (0 = front, -1 if not found).
func (m *Manager) Position(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOfUser(userID)
}

func (m *Manager) findMatchLocked(req Request) *Pairing {
	for i, candidate := range m.waiting {
		if candidate.UserID == req.UserID {
			continue
		}

		difficulties := intersect(req.Difficulties, candidate.Difficulties)
		if len(difficulties) == 0 {
			continue
		}
		topics := intersect(req.Topics, candidate.Topics)
		if len(topics) == 0 {
			continue
		}

		m.removeAt(i)
		return &Pairing{
			Match: Match{
				RoomID:       m.newID(),
				User1:        User{UserID: req.UserID, Email: req.Email},
				User2:        User{UserID: candidate.UserID, Email: candidate.Email},
				Difficulties: difficulties,
				Topics:       topics,
				CreatedAt:    m.now(),
			},
			Partner: *candidate,
		}
	}
	return nil
}

func (m *Manager) enqueueLocked(req Request) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = m.now()
	}
	entry := req
	m.waiting = append(m.waiting, &entry)
	m.logger.Info().
		Str("user_id", req.UserID).
		Int("queue_length", len(m.waiting)).
		Msg("match request enqueued")
}

func (m *Manager) indexOfUser(userID string) int {
	for i, r := range m.waiting {
		if r.UserID == userID {
			return i
		}
	}
	return -1
}

func (m *Manager) removeAt(i int) {
	copy(m.waiting[i:], m.waiting[i+1:])
	m.waiting[len(m.waiting)-1] = nil
	m.waiting = m.waiting[:len(m.waiting)-1]
}

// filterLocked keeps requests for which keep returns true, preserving order.
func (m *Manager) filterLocked(keep func(*Request) bool) int {
	kept := m.waiting[:0]
	for _, r := range m.waiting {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	removed := len(m.waiting) - len(kept)
	for i := len(kept); i < len(m.waiting); i++ {
		m.waiting[i] = nil
	}
	m.waiting = kept
	return removed
}

// intersect returns the elements of a also present in b, in a's order.
func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
