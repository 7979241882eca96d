package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taskboard/pkg/events"
)

// Socket is the transport a Connection writes to. *websocket.Conn satisfies
// it; tests substitute an in-memory implementation.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Info is a read-only snapshot of a connection for diagnostics.
type Info struct {
	ID            string    `json:"connection_id"`
	UserID        string    `json:"user_id,omitempty"`
	Authenticated bool      `json:"authenticated"`
	Rooms         []string  `json:"rooms"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// Connection wraps one client socket. Writes go through a buffered channel
// drained by a single writer goroutine, so any number of callers can send
// without racing on the socket; a full buffer drops the event rather than
// blocking the caller.
//
// Room membership lives both here and in the registry's reverse index. Both
// sides are mutated together under the registry lock, never independently.
type Connection struct {
	id     string
	userID string
	sock   Socket

	sendCh chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	closing   atomic.Bool
	closeOnce sync.Once

	mu          sync.RWMutex
	rooms       map[string]struct{}
	connectedAt time.Time

	writeTimeout time.Duration
	logger       *zap.Logger
}

func newConnection(id string, sock Socket, userID string, sendBuffer int, writeTimeout time.Duration, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		userID:       userID,
		sock:         sock,
		sendCh:       make(chan []byte, sendBuffer),
		ctx:          ctx,
		cancel:       cancel,
		rooms:        make(map[string]struct{}),
		connectedAt:  time.Now().UTC(),
		writeTimeout: writeTimeout,
		logger:       logger.With(zap.String("connection_id", id)),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.logger.Debug("set write deadline failed", zap.Error(err))
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("socket write failed", zap.Error(err))
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the process-unique connection id.
func (c *Connection) ID() string { return c.id }

// UserID returns the resolved user id, or "" for anonymous connections.
func (c *Connection) UserID() string { return c.userID }

// Authenticated reports whether the handshake resolved an identity.
func (c *Connection) Authenticated() bool { return c.userID != "" }

// Send delivers an event envelope best-effort. It never blocks and never
// returns an error to the caller: marshal failures, a full buffer, and a
// closed connection are all logged and dropped.
func (c *Connection) Send(env events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("event marshal failed", zap.String("event_type", string(env.EventType)), zap.Error(err))
		return
	}
	select {
	case <-c.ctx.Done():
		c.logger.Debug("send on closed connection dropped", zap.String("event_type", string(env.EventType)))
	case c.sendCh <- data:
	default:
		c.logger.Warn("send buffer full, event dropped", zap.String("event_type", string(env.EventType)))
	}
}

// Ping probes the peer with a control frame. It is the only liveness check;
// the registry sweep disconnects connections whose probe fails.
func (c *Connection) Ping() error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// BeginClose marks the Open -> Closing transition. It returns true exactly
// once, which gates the offline broadcast so repeated disconnect signals
// cannot double-fire it.
func (c *Connection) BeginClose() bool {
	return c.closing.CompareAndSwap(false, true)
}

// Close performs a best-effort graceful close: a close frame first, then the
// socket. Idempotent; all errors are swallowed.
func (c *Connection) Close(code int, reason string) {
	c.closing.Store(true)
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.writeTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.sock.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("close frame write failed", zap.Error(err))
		}
		c.cancel()
		if err := c.sock.Close(); err != nil {
			c.logger.Debug("socket close failed", zap.Error(err))
		}
	})
}

// joinRoom, leaveRoom, and inRoom are pure set operations on the local room
// set. The registry calls them while holding its lock, together with the
// matching reverse-index update.
func (c *Connection) joinRoom(name string) {
	c.mu.Lock()
	c.rooms[name] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) leaveRoom(name string) {
	c.mu.Lock()
	delete(c.rooms, name)
	c.mu.Unlock()
}

func (c *Connection) inRoom(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[name]
	return ok
}

func (c *Connection) roomList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		rooms = append(rooms, name)
	}
	return rooms
}

// IsInRoom reports membership in a project room.
func (c *Connection) IsInRoom(name string) bool { return c.inRoom(name) }

// Describe returns a diagnostics snapshot of the connection.
func (c *Connection) Describe() Info {
	return Info{
		ID:            c.id,
		UserID:        c.userID,
		Authenticated: c.Authenticated(),
		Rooms:         c.roomList(),
		ConnectedAt:   c.connectedAt,
	}
}
