package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Hub tracks live connections by connection id and delivers messages to them.
// Room membership is not kept here; callers own their own rosters.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.connections[conn.ID()]; exists && old != conn {
		old.Close()
	}
	h.connections[conn.ID()] = conn
	h.logger.Debug().Str("connection_id", conn.ID()).Msg("connection registered")
}

// Unregister removes and closes a connection.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	conn, exists := h.connections[connectionID]
	delete(h.connections, connectionID)
	h.mu.Unlock()

	if exists {
		conn.Close()
		h.logger.Debug().Str("connection_id", connectionID).Msg("connection unregistered")
	}
}

// Send delivers a message to a specific connection.
func (h *Hub) Send(connectionID string, msg Message) error {
	h.mu.RLock()
	conn, exists := h.connections[connectionID]
	h.mu.RUnlock()

	if !exists {
		return ErrConnectionNotFound
	}
	return conn.Send(msg)
}

// Close shuts a connection down after flushing queued messages. The peer sees
// a policy-violation close frame carrying reason, and the connection's read
// loop ends, which runs the owner's normal disconnect cleanup.
func (h *Hub) Close(connectionID string, reason string) {
	h.mu.RLock()
	conn, exists := h.connections[connectionID]
	h.mu.RUnlock()

	if exists {
		conn.Shutdown(websocket.ClosePolicyViolation, reason)
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	id     string
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	frame  []byte
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(id string, conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		sendCh: make(chan Message, sendBuffer),
		frame:  websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		logger: logger.With().Str("connection_id", id).Logger(),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection with a normal close frame.
func (c *Connection) Close() {
	c.Shutdown(websocket.CloseNormalClosure, "")
}

// Shutdown stops accepting messages; WritePump flushes what is queued, then
// writes the close frame and closes the socket.
func (c *Connection) Shutdown(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.frame = websocket.FormatCloseMessage(code, reason)
	close(c.sendCh)
}

func (c *Connection) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// WritePump sends messages from the send queue and keeps the peer alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump receives messages and calls the handler until the socket closes.
func (c *Connection) ReadPump(handler func(Message) error) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Str("type", msg.Type).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
