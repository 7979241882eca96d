package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taskboard/pkg/events"
)

// Stats is a consistent snapshot of registry state, serialized as-is by the
// stats endpoint.
type Stats struct {
	ActiveConnections     int            `json:"active_connections"`
	AuthenticatedUsers    int            `json:"authenticated_users"`
	ProjectRooms          int            `json:"project_rooms"`
	TotalConnections      int            `json:"total_connections"`
	MaxConnections        int            `json:"max_connections"`
	ConnectionsPerUser    map[string]int `json:"connections_per_user"`
	ConnectionsPerProject map[string]int `json:"connections_per_project"`
}

// Registry is the process-wide connection index: connection id -> Connection,
// plus reverse indexes by user id and by room name. A single mutex guards all
// three maps; every mutation is a short critical section, and sends happen
// outside the lock over an id snapshot so a slow peer cannot stall anyone
// else.
//
// Invariants: an id appears in byUser/byRoom iff it is in connections and the
// membership holds; empty index buckets are pruned; a connection's local room
// set and byRoom always agree.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	byUser      map[string]map[string]struct{}
	byRoom      map[string]map[string]struct{}

	totalConnections int
	maxConnections   int

	sendBuffer   int
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewRegistry creates an empty registry. sendBuffer and writeTimeout are
// applied to every connection it allocates.
func NewRegistry(sendBuffer int, writeTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		connections:  make(map[string]*Connection),
		byUser:       make(map[string]map[string]struct{}),
		byRoom:       make(map[string]map[string]struct{}),
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		logger:       logger.With(zap.String("component", "registry")),
	}
}

// Connect allocates a Connection for the transport and registers it. It
// never rejects: an empty userID yields a fully functional anonymous
// connection that is simply absent from the user index.
func (r *Registry) Connect(sock Socket, userID string) *Connection {
	conn := newConnection(uuid.NewString(), sock, userID, r.sendBuffer, r.writeTimeout, r.logger)

	r.mu.Lock()
	r.connections[conn.ID()] = conn
	r.totalConnections++
	if n := len(r.connections); n > r.maxConnections {
		r.maxConnections = n
	}
	if userID != "" {
		if r.byUser[userID] == nil {
			r.byUser[userID] = make(map[string]struct{})
		}
		r.byUser[userID][conn.ID()] = struct{}{}
	}
	r.mu.Unlock()

	r.logger.Info("connection registered",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", userID),
		zap.Bool("authenticated", userID != ""))
	return conn
}

// Disconnect removes the connection from every index and closes it. Safe to
// call more than once and concurrently with any other operation on the same
// id; it reports whether this call performed the removal.
func (r *Registry) Disconnect(connectionID string) bool {
	r.mu.Lock()
	conn, ok := r.connections[connectionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.connections, connectionID)

	for _, room := range conn.roomList() {
		conn.leaveRoom(room)
		r.removeFromRoomLocked(connectionID, room)
	}
	if userID := conn.UserID(); userID != "" {
		if ids, ok := r.byUser[userID]; ok {
			delete(ids, connectionID)
			if len(ids) == 0 {
				delete(r.byUser, userID)
			}
		}
	}
	r.mu.Unlock()

	conn.Close(gorilla.CloseNormalClosure, "disconnected")
	r.logger.Info("connection removed", zap.String("connection_id", connectionID), zap.String("user_id", conn.UserID()))
	return true
}

// JoinRoom adds the connection to a project room, updating the local set and
// the reverse index together. Joining twice is a no-op; an unknown id is
// ignored.
func (r *Registry) JoinRoom(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[connectionID]
	if !ok {
		return
	}
	conn.joinRoom(room)
	if r.byRoom[room] == nil {
		r.byRoom[room] = make(map[string]struct{})
	}
	r.byRoom[room][connectionID] = struct{}{}
	r.logger.Debug("joined room", zap.String("connection_id", connectionID), zap.String("room", room))
}

// LeaveRoom removes the connection from a project room. Leaving a room not
// joined is a no-op.
func (r *Registry) LeaveRoom(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[connectionID]
	if !ok {
		return
	}
	conn.leaveRoom(room)
	r.removeFromRoomLocked(connectionID, room)
	r.logger.Debug("left room", zap.String("connection_id", connectionID), zap.String("room", room))
}

func (r *Registry) removeFromRoomLocked(connectionID, room string) {
	ids, ok := r.byRoom[room]
	if !ok {
		return
	}
	delete(ids, connectionID)
	if len(ids) == 0 {
		delete(r.byRoom, room)
	}
}

// Get looks up a live connection by id.
func (r *Registry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connectionID]
	return conn, ok
}

// SendToConnection delivers to one connection; an unknown id is silently
// dropped, since room membership and liveness are only eventually consistent.
func (r *Registry) SendToConnection(connectionID string, env events.Envelope) {
	r.mu.RLock()
	conn, ok := r.connections[connectionID]
	r.mu.RUnlock()
	if ok {
		conn.Send(env)
	}
}

// SendToUser fans out to every connection of one user. Anonymous connections
// never match. Each delivery is independent and failure-isolated.
func (r *Registry) SendToUser(userID string, env events.Envelope) {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		if conn, ok := r.connections[id]; ok {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(env)
	}
}

// BroadcastToRoom fans out to a point-in-time snapshot of the room, minus the
// optionally excluded connection. Members joining or leaving mid-broadcast
// may or may not receive this event.
func (r *Registry) BroadcastToRoom(room string, env events.Envelope, excludeConnectionID string) {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.byRoom[room]))
	for id := range r.byRoom[room] {
		if id == excludeConnectionID {
			continue
		}
		if conn, ok := r.connections[id]; ok {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(env)
	}
}

// BroadcastToAll fans out to every connection, minus the optionally excluded
// one.
func (r *Registry) BroadcastToAll(env events.Envelope, excludeConnectionID string) {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.connections))
	for id, conn := range r.connections {
		if id == excludeConnectionID {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(env)
	}
}

// Stats computes counters from one consistent snapshot.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perUser := make(map[string]int, len(r.byUser))
	for userID, ids := range r.byUser {
		perUser[userID] = len(ids)
	}
	perRoom := make(map[string]int, len(r.byRoom))
	for room, ids := range r.byRoom {
		perRoom[room] = len(ids)
	}
	return Stats{
		ActiveConnections:     len(r.connections),
		AuthenticatedUsers:    len(r.byUser),
		ProjectRooms:          len(r.byRoom),
		TotalConnections:      r.totalConnections,
		MaxConnections:        r.maxConnections,
		ConnectionsPerUser:    perUser,
		ConnectionsPerProject: perRoom,
	}
}

// SweepStale ping-probes every connection from a snapshot and disconnects
// those whose probe fails, returning the number removed. This is the only
// timeout-like mechanism; there is no per-message deadline.
func (r *Registry) SweepStale() int {
	r.mu.RLock()
	snapshot := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		snapshot = append(snapshot, conn)
	}
	r.mu.RUnlock()

	var stale []string
	for _, conn := range snapshot {
		if err := conn.Ping(); err != nil {
			stale = append(stale, conn.ID())
		}
	}
	for _, id := range stale {
		r.Disconnect(id)
	}
	if len(stale) > 0 {
		r.logger.Info("stale connections swept", zap.Int("removed", len(stale)))
	}
	return len(stale)
}
