package ws

import "encoding/json"

// MessageType constants for the WebSocket protocol.
const (
	// Client -> Server (matching)
	TypeFindMatch    = "find_match"
	TypeCancelMatch  = "cancel_match"
	TypeLeaveSession = "leave_session"

	// Client -> Server (collab)
	TypeJoinRoom        = "join_room"
	TypeCodespaceChange = "codespace_change"
	TypeLeaveRoom       = "leave_room"

	// Server -> Client
	TypeWaiting        = "waiting"
	TypeMatchFound     = "match_found"
	TypeMatchError     = "match_error"
	TypeMatchCancelled = "match_cancelled"
	TypeSessionLeft    = "session_left"
	TypeRoomJoined     = "room_joined"
	TypePresenceUpdate = "presence_update"
	TypeIdleDisconnect = "idle_disconnect"
	TypeError          = "error"

	// Both directions
	TypePing = "ping"
	TypePong = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed envelope.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Client Messages (incoming)

type FindMatchPayload struct {
	Difficulties []string `json:"difficulties"`
	Topics       []string `json:"topics"`
}

type CancelMatchPayload struct {
	UserID string `json:"userId,omitempty"`
}

type LeaveSessionPayload struct {
	UserID string `json:"userId,omitempty"`
}

type JoinRoomPayload struct {
	RoomID     string `json:"roomId"`
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type CodespaceChangePayload struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	ClientTs int64  `json:"clientTs,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// Server Messages (outgoing)

type WaitingPayload struct {
	Message  string `json:"message"`
	Position int    `json:"position"`
}

type MatchUser struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type MatchFoundPayload struct {
	RoomID       string    `json:"roomId"`
	User1        MatchUser `json:"user1"`
	User2        MatchUser `json:"user2"`
	Difficulties []string  `json:"difficulties"`
	Topics       []string  `json:"topics"`
	CreatedAt    string    `json:"createdAt"`
}

type MatchCancelledPayload struct {
	Message string `json:"message"`
}

type SessionLeftPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId,omitempty"`
}

type Question struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Topic       string `json:"topic,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
}

type Participant struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

type RoomJoinedPayload struct {
	RoomID       string        `json:"roomId"`
	Question     Question      `json:"question"`
	Code         string        `json:"code"`
	Participants []Participant `json:"participants"`
}

type CodespaceBroadcastPayload struct {
	Code      string `json:"code"`
	UpdatedAt int64  `json:"updatedAt"`
	ClientTs  int64  `json:"clientTs,omitempty"`
}

type PresenceUpdatePayload struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

type IdleDisconnectPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
