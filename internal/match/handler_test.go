package match

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/peerprep/internal/auth"
	"github.com/gokatarajesh/peerprep/internal/match/queue"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
	"github.com/gokatarajesh/peerprep/pkg/http/ws"
)

type recordingHub struct {
	mu   sync.Mutex
	sent map[string][]ws.Message
}

func newRecordingHub() *recordingHub {
	return &recordingHub{sent: make(map[string][]ws.Message)}
}

func (h *recordingHub) Register(*ws.Connection) {}
func (h *recordingHub) Unregister(string)       {}

func (h *recordingHub) Send(connectionID string, msg ws.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent[connectionID] = append(h.sent[connectionID], msg)
	return nil
}

func (h *recordingHub) last(t *testing.T, connectionID string) ws.Message {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.sent[connectionID]
	require.NotEmpty(t, msgs, "no messages for %s", connectionID)
	return msgs[len(msgs)-1]
}

func newTestHandler() (*Handler, *Service, *recordingHub) {
	svc := NewService(queue.NewManager(zerolog.Nop(), queue.Options{}), ServiceOptions{}, zerolog.Nop())
	hub := newRecordingHub()
	return NewHandler(svc, hub, auth.NewIdentifier(""), websocket.Upgrader{}, zerolog.Nop()), svc, hub
}

func sessionFor(user string) session {
	return session{
		connectionID: "conn-" + user,
		identity:     auth.Identity{UserID: user, Email: user + "@example.com"},
	}
}

func message(t *testing.T, msgType string, payload any) ws.Message {
	t.Helper()
	msg, err := ws.NewMessage(msgType, payload)
	require.NoError(t, err)
	msg.RequestID = "req-1"
	return msg
}

func decode[T any](t *testing.T, msg ws.Message) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(msg.Payload, &out))
	return out
}

func TestHandleFindMatchWaitsThenNotifiesBoth(t *testing.T) {
	h, _, hub := newTestHandler()
	ctx := context.Background()

	alice, bob := sessionFor("alice"), sessionFor("bob")

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, ws.FindMatchPayload{
		Difficulties: []string{"Easy"}, Topics: []string{"DP"},
	})))
	waiting := hub.last(t, alice.connectionID)
	assert.Equal(t, ws.TypeWaiting, waiting.Type)
	assert.Equal(t, "req-1", waiting.RequestID)
	assert.Equal(t, 0, decode[ws.WaitingPayload](t, waiting).Position)

	require.NoError(t, h.handleMessage(ctx, bob, message(t, ws.TypeFindMatch, ws.FindMatchPayload{
		Difficulties: []string{"Easy", "Hard"}, Topics: []string{"DP", "Math"},
	})))

	toBob := hub.last(t, bob.connectionID)
	toAlice := hub.last(t, alice.connectionID)
	require.Equal(t, ws.TypeMatchFound, toBob.Type)
	require.Equal(t, ws.TypeMatchFound, toAlice.Type)

	bobView := decode[ws.MatchFoundPayload](t, toBob)
	aliceView := decode[ws.MatchFoundPayload](t, toAlice)
	assert.Equal(t, bobView.RoomID, aliceView.RoomID)
	assert.NotEmpty(t, bobView.RoomID)
	assert.Equal(t, []string{"Easy"}, bobView.Difficulties)
	assert.Equal(t, []string{"DP"}, bobView.Topics)
}

func TestHandleFindMatchRejectsActiveUser(t *testing.T) {
	h, svc, hub := newTestHandler()
	ctx := context.Background()
	alice, bob := sessionFor("alice"), sessionFor("bob")
	criteria := ws.FindMatchPayload{Difficulties: []string{"Easy"}, Topics: []string{"DP"}}

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, criteria)))
	require.NoError(t, h.handleMessage(ctx, bob, message(t, ws.TypeFindMatch, criteria)))
	_, active := svc.ActiveRoom("alice")
	require.True(t, active)

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, criteria)))
	reply := hub.last(t, alice.connectionID)
	assert.Equal(t, ws.TypeMatchError, reply.Type)
	assert.Equal(t, httperrors.ErrCodeAlreadyInSession, decode[ws.ErrorPayload](t, reply).Code)
	assert.Equal(t, 0, svc.QueueLength())
}

func TestHandleFindMatchRejectsEmptyCriteria(t *testing.T) {
	h, svc, hub := newTestHandler()
	alice := sessionFor("alice")

	require.NoError(t, h.handleMessage(context.Background(), alice, message(t, ws.TypeFindMatch, ws.FindMatchPayload{
		Difficulties: []string{"  "}, Topics: []string{"DP"},
	})))
	reply := hub.last(t, alice.connectionID)
	assert.Equal(t, ws.TypeMatchError, reply.Type)
	assert.Equal(t, httperrors.ErrCodeInvalidCriteria, decode[ws.ErrorPayload](t, reply).Code)
	assert.Equal(t, 0, svc.QueueLength())
}

func TestHandleFindMatchRejectsMalformedPayload(t *testing.T) {
	h, _, hub := newTestHandler()
	alice := sessionFor("alice")

	msg := ws.Message{Type: ws.TypeFindMatch, Payload: json.RawMessage(`"nope"`)}
	require.NoError(t, h.handleMessage(context.Background(), alice, msg))
	assert.Equal(t, httperrors.ErrCodeInvalidPayload, decode[ws.ErrorPayload](t, hub.last(t, alice.connectionID)).Code)
}

func TestHandleFindMatchFromSecondConnection(t *testing.T) {
	h, _, hub := newTestHandler()
	ctx := context.Background()
	criteria := ws.FindMatchPayload{Difficulties: []string{"Easy"}, Topics: []string{"DP"}}

	first := sessionFor("alice")
	second := sessionFor("alice")
	second.connectionID = "conn-alice-tab2"

	require.NoError(t, h.handleMessage(ctx, first, message(t, ws.TypeFindMatch, criteria)))
	require.NoError(t, h.handleMessage(ctx, second, message(t, ws.TypeFindMatch, criteria)))

	reply := hub.last(t, second.connectionID)
	assert.Equal(t, ws.TypeMatchError, reply.Type)
	assert.Equal(t, httperrors.ErrCodeAlreadyQueued, decode[ws.ErrorPayload](t, reply).Code)
}

func TestHandleCancelMatch(t *testing.T) {
	h, svc, hub := newTestHandler()
	ctx := context.Background()
	alice := sessionFor("alice")

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, ws.FindMatchPayload{
		Difficulties: []string{"Easy"}, Topics: []string{"DP"},
	})))
	require.Equal(t, 1, svc.QueueLength())

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeCancelMatch, ws.CancelMatchPayload{UserID: "alice"})))
	assert.Equal(t, ws.TypeMatchCancelled, hub.last(t, alice.connectionID).Type)
	assert.Equal(t, 0, svc.QueueLength())

	// cancelling again is harmless
	require.NoError(t, h.handleMessage(ctx, alice, ws.Message{Type: ws.TypeCancelMatch}))
	assert.Equal(t, ws.TypeMatchCancelled, hub.last(t, alice.connectionID).Type)
}

func TestHandleCancelMatchForAnotherUser(t *testing.T) {
	h, svc, hub := newTestHandler()
	ctx := context.Background()
	alice, bob := sessionFor("alice"), sessionFor("bob")

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, ws.FindMatchPayload{
		Difficulties: []string{"Easy"}, Topics: []string{"DP"},
	})))
	require.NoError(t, h.handleMessage(ctx, bob, message(t, ws.TypeCancelMatch, ws.CancelMatchPayload{UserID: "alice"})))

	reply := hub.last(t, bob.connectionID)
	assert.Equal(t, ws.TypeMatchError, reply.Type)
	assert.Equal(t, httperrors.ErrCodeUserMismatch, decode[ws.ErrorPayload](t, reply).Code)
	assert.Equal(t, 1, svc.QueueLength())
}

func TestHandleLeaveSessionAllowsRequeue(t *testing.T) {
	h, svc, hub := newTestHandler()
	ctx := context.Background()
	alice, bob := sessionFor("alice"), sessionFor("bob")
	criteria := ws.FindMatchPayload{Difficulties: []string{"Easy"}, Topics: []string{"DP"}}

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, criteria)))
	require.NoError(t, h.handleMessage(ctx, bob, message(t, ws.TypeFindMatch, criteria)))
	roomID, ok := svc.ActiveRoom("alice")
	require.True(t, ok)

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeLeaveSession, ws.LeaveSessionPayload{UserID: "alice"})))
	left := decode[ws.SessionLeftPayload](t, hub.last(t, alice.connectionID))
	assert.Equal(t, "alice", left.UserID)
	assert.Equal(t, roomID, left.RoomID)

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeLeaveSession, nil)))
	assert.Equal(t, ws.TypeSessionLeft, hub.last(t, alice.connectionID).Type)

	require.NoError(t, h.handleMessage(ctx, alice, message(t, ws.TypeFindMatch, criteria)))
	assert.Equal(t, ws.TypeWaiting, hub.last(t, alice.connectionID).Type)
}

func TestHandlePingAndUnknown(t *testing.T) {
	h, _, hub := newTestHandler()
	alice := sessionFor("alice")

	require.NoError(t, h.handleMessage(context.Background(), alice, ws.Message{Type: ws.TypePing, RequestID: "p1"}))
	pong := hub.last(t, alice.connectionID)
	assert.Equal(t, ws.TypePong, pong.Type)
	assert.Equal(t, "p1", pong.RequestID)

	require.NoError(t, h.handleMessage(context.Background(), alice, ws.Message{Type: "teleport"}))
	reply := hub.last(t, alice.connectionID)
	assert.Equal(t, ws.TypeError, reply.Type)
	assert.Equal(t, httperrors.ErrCodeUnknownMessageType, decode[ws.ErrorPayload](t, reply).Code)
}

func TestDisconnectPurgesQueuedRequest(t *testing.T) {
	h, svc, _ := newTestHandler()
	alice := sessionFor("alice")

	require.NoError(t, h.handleMessage(context.Background(), alice, message(t, ws.TypeFindMatch, ws.FindMatchPayload{
		Difficulties: []string{"Easy"}, Topics: []string{"DP"},
	})))
	h.disconnect(alice)
	assert.Equal(t, 0, svc.QueueLength())
}
