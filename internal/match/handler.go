package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/auth"
	"github.com/gokatarajesh/peerprep/internal/match/queue"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
	"github.com/gokatarajesh/peerprep/pkg/http/ws"
)

// connectionHub is the part of ws.Hub the handler needs.
type connectionHub interface {
	Register(conn *ws.Connection)
	Unregister(connectionID string)
	Send(connectionID string, msg ws.Message) error
}

// Handler manages matching WebSocket connections and routes their messages.
type Handler struct {
	service    *Service
	hub        connectionHub
	identifier *auth.Identifier
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewHandler creates a matching WebSocket handler.
func NewHandler(service *Service, hub connectionHub, identifier *auth.Identifier, upgrader websocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{
		service:    service,
		hub:        hub,
		identifier: identifier,
		upgrader:   upgrader,
		logger:     logger.With().Str("component", "match_ws").Logger(),
	}
}

// session is the per-connection state a handler needs to answer a message.
type session struct {
	connectionID string
	identity     auth.Identity
}

// HandleConnection serves one upgraded socket until it closes.
func (h *Handler) HandleConnection(conn *websocket.Conn, identity auth.Identity) {
	sess := session{connectionID: uuid.NewString(), identity: identity}
	wsConn := ws.NewConnection(sess.connectionID, conn, h.logger)
	h.hub.Register(wsConn)

	h.logger.Info().Str("connection_id", sess.connectionID).Str("user_id", identity.UserID).Msg("matching client connected")

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), sess, msg)
	})

	h.disconnect(sess)
}

func (h *Handler) disconnect(sess session) {
	h.service.Disconnect(sess.connectionID)
	h.hub.Unregister(sess.connectionID)
	h.logger.Info().Str("connection_id", sess.connectionID).Str("user_id", sess.identity.UserID).Msg("matching client disconnected")
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(ctx context.Context, sess session, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeFindMatch:
		return h.handleFindMatch(ctx, sess, msg)
	case ws.TypeCancelMatch:
		return h.handleCancelMatch(sess, msg)
	case ws.TypeLeaveSession:
		return h.handleLeaveSession(sess, msg)
	case ws.TypePing:
		return h.send(sess.connectionID, ws.TypePong, msg.RequestID, nil)
	default:
		return h.sendError(sess.connectionID, ws.TypeError, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleFindMatch(ctx context.Context, sess session, msg ws.Message) error {
	var req ws.FindMatchPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(sess.connectionID, ws.TypeMatchError, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid find_match payload")
	}

	pairing, err := h.service.FindMatch(ctx, Criteria{
		UserID:       sess.identity.UserID,
		Email:        sess.identity.Email,
		Difficulties: req.Difficulties,
		Topics:       req.Topics,
	}, sess.connectionID)
	if err != nil {
		code, message := matchErrorCode(err)
		return h.sendError(sess.connectionID, ws.TypeMatchError, msg.RequestID, code, message)
	}

	if pairing == nil {
		return h.send(sess.connectionID, ws.TypeWaiting, msg.RequestID, ws.WaitingPayload{
			Message:  "Searching for a match...",
			Position: h.service.Position(sess.identity.UserID),
		})
	}

	payload := toMatchFoundPayload(pairing.Match)
	if err := h.send(pairing.Partner.ConnectionID, ws.TypeMatchFound, "", payload); err != nil {
		h.logger.Warn().Err(err).
			Str("room_id", pairing.Match.RoomID).
			Str("connection_id", pairing.Partner.ConnectionID).
			Msg("failed to notify matched partner")
	}
	return h.send(sess.connectionID, ws.TypeMatchFound, msg.RequestID, payload)
}

func (h *Handler) handleCancelMatch(sess session, msg ws.Message) error {
	if err := h.checkUser(sess, msg.Payload); err != nil {
		return h.sendError(sess.connectionID, ws.TypeMatchError, msg.RequestID, httperrors.ErrCodeUserMismatch, err.Error())
	}
	h.service.Cancel(sess.identity.UserID)
	return h.send(sess.connectionID, ws.TypeMatchCancelled, msg.RequestID, ws.MatchCancelledPayload{
		Message: "Match search cancelled",
	})
}

func (h *Handler) handleLeaveSession(sess session, msg ws.Message) error {
	if err := h.checkUser(sess, msg.Payload); err != nil {
		return h.sendError(sess.connectionID, ws.TypeMatchError, msg.RequestID, httperrors.ErrCodeUserMismatch, err.Error())
	}
	roomID, _ := h.service.LeaveSession(sess.identity.UserID)
	return h.send(sess.connectionID, ws.TypeSessionLeft, msg.RequestID, ws.SessionLeftPayload{
		UserID: sess.identity.UserID,
		RoomID: roomID,
	})
}

// checkUser rejects payloads naming a user other than the connection's own.
// An empty payload or userId means the connection's user.
func (h *Handler) checkUser(sess session, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("invalid payload")
	}
	if body.UserID != "" && body.UserID != sess.identity.UserID {
		return fmt.Errorf("cannot act on behalf of another user")
	}
	return nil
}

func matchErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, queue.ErrAlreadyInSession):
		return httperrors.ErrCodeAlreadyInSession, "You are already in an active session. Leave it before searching again."
	case errors.Is(err, queue.ErrAlreadyQueued):
		return httperrors.ErrCodeAlreadyQueued, "You are already searching for a match from another window."
	case errors.Is(err, ErrInvalidCriteria):
		return httperrors.ErrCodeInvalidCriteria, "Pick at least one difficulty and one topic."
	default:
		return httperrors.ErrCodeInternalError, "Could not process match request"
	}
}

func (h *Handler) send(connectionID, msgType, requestID string, payload any) error {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return h.hub.Send(connectionID, msg)
}

func (h *Handler) sendError(connectionID, msgType, requestID, code, message string) error {
	return h.send(connectionID, msgType, requestID, ws.ErrorPayload{Code: code, Message: message})
}
