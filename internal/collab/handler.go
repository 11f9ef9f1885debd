package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/auth"
	"github.com/gokatarajesh/peerprep/internal/question"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
	"github.com/gokatarajesh/peerprep/pkg/http/ws"
)

type connectionHub interface {
	Register(conn *ws.Connection)
	Unregister(connectionID string)
	Send(connectionID string, msg ws.Message) error
}

// Handler serves collaboration room sockets.
type Handler struct {
	coord      *Coordinator
	hub        connectionHub
	identifier *auth.Identifier
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewHandler(coord *Coordinator, hub connectionHub, identifier *auth.Identifier, upgrader websocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{
		coord:      coord,
		hub:        hub,
		identifier: identifier,
		upgrader:   upgrader,
		logger:     logger.With().Str("component", "collab_ws").Logger(),
	}
}

type session struct {
	connectionID string
	identity     auth.Identity
}

// HandleWebSocket resolves the caller's identity and upgrades to WebSocket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identifier.FromRequest(r)
	if err != nil {
		code := httperrors.ErrCodeInvalidToken
		if errors.Is(err, auth.ErrMissingIdentity) {
			code = httperrors.ErrCodeMissingToken
		}
		httperrors.RespondUnauthorized(w, code, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.HandleConnection(conn, identity)
}

// HandleConnection serves one upgraded socket until it closes.
func (h *Handler) HandleConnection(conn *websocket.Conn, identity auth.Identity) {
	sess := session{connectionID: uuid.NewString(), identity: identity}
	wsConn := ws.NewConnection(sess.connectionID, conn, h.logger)
	h.hub.Register(wsConn)
	h.coord.Touch(sess.connectionID)

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		h.coord.Touch(sess.connectionID)
		return h.handleMessage(context.Background(), sess, msg)
	})

	h.coord.Disconnect(sess.connectionID)
	h.hub.Unregister(sess.connectionID)
	h.logger.Info().Str("connection_id", sess.connectionID).Str("user_id", identity.UserID).Msg("collab client disconnected")
}

func (h *Handler) handleMessage(ctx context.Context, sess session, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinRoom:
		return h.handleJoin(ctx, sess, msg)
	case ws.TypeCodespaceChange:
		return h.handleCodeChange(sess, msg)
	case ws.TypeLeaveRoom:
		return h.handleLeave(sess, msg)
	case ws.TypePing:
		return h.send(sess.connectionID, ws.TypePong, msg.RequestID, nil)
	default:
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleJoin(ctx context.Context, sess session, msg ws.Message) error {
	var req ws.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid join_room payload")
	}

	res, err := h.coord.Join(ctx, req.RoomID, Participant{
		UserID:       sess.identity.UserID,
		Email:        sess.identity.Email,
		ConnectionID: sess.connectionID,
	}, req.Topic, req.Difficulty)
	if errors.Is(err, ErrMissingRoomID) {
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeMissingRoomID, "roomId is required")
	}
	if err != nil {
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeInternalError, "Could not join room")
	}

	return h.send(sess.connectionID, ws.TypeRoomJoined, msg.RequestID, ws.RoomJoinedPayload{
		RoomID:       req.RoomID,
		Question:     toWireQuestion(res.Question),
		Code:         res.Code,
		Participants: res.Participants,
	})
}

func (h *Handler) handleCodeChange(sess session, msg ws.Message) error {
	var req ws.CodespaceChangePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid codespace_change payload")
	}
	if req.RoomID == "" {
		roomID, ok := h.coord.RoomOf(sess.connectionID)
		if !ok {
			return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeMissingRoomID, "roomId is required")
		}
		req.RoomID = roomID
	}

	if err := h.coord.ApplyCodeChange(req.RoomID, sess.connectionID, req.Code, req.ClientTs); err != nil {
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeNotInRoom, "Join the room before editing")
	}
	return nil
}

func (h *Handler) handleLeave(sess session, msg ws.Message) error {
	var req ws.LeaveRoomPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid leave_room payload")
		}
	}
	current, ok := h.coord.RoomOf(sess.connectionID)
	if !ok {
		return nil
	}
	if req.RoomID != "" && req.RoomID != current {
		return h.sendError(sess.connectionID, msg.RequestID, httperrors.ErrCodeNotInRoom, "Not in that room")
	}
	h.coord.Leave(sess.connectionID)
	return nil
}

func toWireQuestion(q question.Question) ws.Question {
	return ws.Question{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Topic:       q.Topic,
		Difficulty:  q.Difficulty,
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

func (h *Handler) sendError(connectionID, requestID, code, message string) error {
	return h.send(connectionID, ws.TypeError, requestID, ws.ErrorPayload{Code: code, Message: message})
}
