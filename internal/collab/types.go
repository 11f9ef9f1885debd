package collab

import (
	"context"
	"errors"
	"time"

	"github.com/gokatarajesh/peerprep/internal/history"
	"github.com/gokatarajesh/peerprep/internal/question"
	"github.com/gokatarajesh/peerprep/pkg/http/ws"
)

var (
	// ErrMissingRoomID is returned when a join names no room.
	ErrMissingRoomID = errors.New("room id is required")
	// ErrNotInRoom is returned when a connection acts on a room it has not joined.
	ErrNotInRoom = errors.New("connection is not in that room")
)

// QuestionProvider picks a random question from the catalog.
type QuestionProvider interface {
	Random(ctx context.Context, criteria question.Criteria) (question.Question, error)
}

// Notifier delivers messages to, and closes, client connections.
type Notifier interface {
	Send(connectionID string, msg ws.Message) error
	Close(connectionID string, reason string)
}

// HistoryRecorder stores what a participant worked on when they leave.
type HistoryRecorder interface {
	Record(ctx context.Context, rec history.Record) error
}

// SessionReleaser frees a user's matchmaking binding once they have left the room.
type SessionReleaser interface {
	ReleaseSession(userID, roomID string) bool
}

// Participant is one live connection in a room.
type Participant struct {
	UserID         string
	Email          string
	ConnectionID   string
	RoomID         string
	JoinedAt       time.Time
	LastActivityAt time.Time
}

// JoinResult is what a joining connection receives.
type JoinResult struct {
	Question     question.Question
	Code         string
	Participants []ws.Participant
}

// RoomSnapshot is a copy of a room's state for inspection.
type RoomSnapshot struct {
	RoomID        string
	Question      *question.Question
	Code          string
	CodeUpdatedAt time.Time
	InitializedAt time.Time
	Participants  []ws.Participant
}

type room struct {
	id            string
	topic         string
	difficulty    string
	question      *question.Question
	initializedAt time.Time
	code          string
	codeUpdatedAt time.Time
	members       map[string]*Participant // connection_id -> participant
	order         []string                // connection ids in join order
}

func newRoom(id, topic, difficulty string) *room {
	return &room{
		id:         id,
		topic:      topic,
		difficulty: difficulty,
		members:    make(map[string]*Participant),
	}
}

func (r *room) add(p *Participant) {
	if _, ok := r.members[p.ConnectionID]; !ok {
		r.order = append(r.order, p.ConnectionID)
	}
	r.members[p.ConnectionID] = p
}

func (r *room) remove(connectionID string) *Participant {
	p, ok := r.members[connectionID]
	if !ok {
		return nil
	}
	delete(r.members, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p
}

// roster lists participants in join order, one entry per user.
func (r *room) roster() []ws.Participant {
	seen := make(map[string]struct{}, len(r.order))
	out := make([]ws.Participant, 0, len(r.order))
	for _, id := range r.order {
		p := r.members[id]
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, ws.Participant{UserID: p.UserID, Email: p.Email})
	}
	return out
}

func (r *room) hasUser(userID string) bool {
	for _, p := range r.members {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
