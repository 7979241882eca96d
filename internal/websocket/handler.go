package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taskboard/pkg/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are delegated to the deployment's edge proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// TokenResolver turns a bearer token into a user id. Implementations must
// treat resolution failure as non-fatal; the handler degrades to an
// anonymous connection.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Auditor records connection lifecycle for diagnostics. A nil Auditor
// disables recording.
type Auditor interface {
	RecordConnect(connectionID, userID string)
	RecordDisconnect(connectionID, userID, reason string)
}

// HandlerConfig bounds inbound traffic per connection.
type HandlerConfig struct {
	MaxMessageSize int64
	MessageRate    float64 // messages per second, <= 0 disables limiting
	MessageBurst   int
}

// Handler owns the connection handshake and the per-connection read loop,
// and dispatches the inbound control protocol (ping, join_project,
// leave_project). Each connection moves Connecting -> Open on registration,
// loops on Open for every inbound message, and transitions Closing -> Closed
// exactly once on any disconnect signal.
type Handler struct {
	registry *Registry
	resolver TokenResolver
	audit    Auditor
	limiter  *messageLimiter
	config   HandlerConfig
	logger   *zap.Logger
}

// NewHandler wires the protocol handler. resolver may not be nil; audit may.
func NewHandler(registry *Registry, resolver TokenResolver, audit Auditor, cfg HandlerConfig, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		resolver: resolver,
		audit:    audit,
		limiter:  newMessageLimiter(cfg.MessageRate, cfg.MessageBurst),
		config:   cfg,
		logger:   logger.With(zap.String("component", "ws_handler")),
	}
}

// HandleWebSocket upgrades the request and starts the connection lifecycle.
// The token query parameter is optional: a missing or invalid token yields
// an anonymous connection, never a rejected upgrade.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if token := r.URL.Query().Get("token"); token != "" {
		id, err := h.resolver.Resolve(r.Context(), token)
		if err != nil {
			h.logger.Warn("token resolution failed, continuing anonymous", zap.Error(err))
		} else {
			userID = id
		}
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sock.SetReadLimit(h.config.MaxMessageSize)

	conn := h.registry.Connect(sock, userID)
	if h.audit != nil {
		h.audit.RecordConnect(conn.ID(), userID)
	}

	conn.Send(events.NewWelcomeEvent(conn.ID(), userID, conn.Authenticated()))
	if conn.Authenticated() {
		h.registry.BroadcastToAll(events.NewPresenceEvent(events.TypeUserOnline, userID, true), "")
	}

	go h.readLoop(sock, conn)
}

// readLoop processes inbound messages in arrival order until the transport
// fails or closes. Per-message failures never terminate the loop.
func (h *Handler) readLoop(sock *websocket.Conn, conn *Connection) {
	defer h.finish(conn, "transport closed")

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read loop ended", zap.String("connection_id", conn.ID()), zap.Error(err))
			}
			return
		}
		h.handleMessage(conn, data)
	}
}

// finish drives Open -> Closing -> Closed. The BeginClose gate ensures the
// offline broadcast fires at most once however many disconnect signals race.
func (h *Handler) finish(conn *Connection, reason string) {
	h.limiter.forget(conn.ID())
	if !conn.BeginClose() {
		return
	}
	if conn.Authenticated() {
		h.registry.BroadcastToAll(events.NewPresenceEvent(events.TypeUserOffline, conn.UserID(), false), "")
	}
	h.registry.Disconnect(conn.ID())
	if h.audit != nil {
		h.audit.RecordDisconnect(conn.ID(), conn.UserID(), reason)
	}
}

// handleMessage decodes and dispatches one inbound control message. Every
// failure mode answers the sender with an error envelope and leaves the
// connection open; a panic while handling is caught and reported the same
// way.
func (h *Handler) handleMessage(conn *Connection, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic while handling message",
				zap.String("connection_id", conn.ID()), zap.Any("panic", rec))
			conn.Send(events.NewErrorEvent(CodeMessageError, "failed to process message",
				nil, "", conn.UserID()))
		}
	}()

	if !h.limiter.allow(conn.ID()) {
		conn.Send(events.NewErrorEvent(CodeRateLimited, "too many messages", nil, "", conn.UserID()))
		return
	}

	var msg events.ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		conn.Send(events.NewErrorEvent(CodeInvalidJSON, "invalid JSON",
			map[string]any{"message": truncate(string(data), 256)}, "", conn.UserID()))
		return
	}

	switch msg.EventType {
	case events.TypePing:
		conn.Send(events.NewPongEvent())

	case events.TypeJoinProject:
		if msg.ProjectID == "" {
			conn.Send(events.NewErrorEvent(CodeMissingProjectID, "project_id is required", nil, "", conn.UserID()))
			return
		}
		h.registry.JoinRoom(conn.ID(), msg.ProjectID)
		conn.Send(events.NewRoomAckEvent(events.TypeProjectMemberAdded,
			msg.ProjectID, conn.ID(), conn.UserID(), "joined project "+msg.ProjectID))

	case events.TypeLeaveProject:
		if msg.ProjectID == "" {
			conn.Send(events.NewErrorEvent(CodeMissingProjectID, "project_id is required", nil, "", conn.UserID()))
			return
		}
		h.registry.LeaveRoom(conn.ID(), msg.ProjectID)
		conn.Send(events.NewRoomAckEvent(events.TypeProjectMemberRemoved,
			msg.ProjectID, conn.ID(), conn.UserID(), "left project "+msg.ProjectID))

	default:
		conn.Send(events.NewErrorEvent(CodeUnknownEvent, "unknown event type: "+string(msg.EventType),
			map[string]any{"received_type": string(msg.EventType)}, "", conn.UserID()))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
