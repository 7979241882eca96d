// Package hub is the publish side of the broadcast core: business services
// call its per-family helpers after their own mutations commit, and the hub
// delivers the resulting events through the connection registry. Publishing
// is fire-and-forget: a bounded queue decouples the caller's transaction
// from delivery, and no delivery failure ever propagates back.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"taskboard/pkg/events"
)

// Broadcaster is the registry surface the hub dispatches into.
type Broadcaster interface {
	SendToUser(userID string, env events.Envelope)
	BroadcastToRoom(room string, env events.Envelope, excludeConnectionID string)
	BroadcastToAll(env events.Envelope, excludeConnectionID string)
}

type job struct {
	env   events.Envelope
	scope events.Scope
}

// Hub owns the bounded publish queue and the single worker draining it.
type Hub struct {
	jobs     chan job
	shutdown chan struct{}
	registry Broadcaster

	mu      sync.RWMutex
	running bool

	logger *zap.Logger
}

// NewHub creates a hub with the given queue capacity.
func NewHub(registry Broadcaster, queueSize int, logger *zap.Logger) *Hub {
	return &Hub{
		jobs:     make(chan job, queueSize),
		shutdown: make(chan struct{}),
		registry: registry,
		logger:   logger.With(zap.String("component", "hub")),
	}
}

// Start launches the dispatch worker.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrAlreadyRunning
	}
	h.running = true
	go h.run(ctx)
	return nil
}

// Stop terminates the dispatch worker. Events still queued are dropped;
// delivery is best-effort by contract.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrNotRunning
	}
	h.running = false
	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	return nil
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case j := <-h.jobs:
			h.dispatch(j)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(j job) {
	switch j.scope.Kind {
	case events.ScopeRoom:
		h.registry.BroadcastToRoom(j.scope.Room, j.env, "")
	case events.ScopeUser:
		h.registry.SendToUser(j.scope.UserID, j.env)
	case events.ScopeGlobal:
		h.registry.BroadcastToAll(j.env, "")
	default:
		h.logger.Warn("event with unroutable scope dropped",
			zap.String("event_type", string(j.env.EventType)),
			zap.String("scope", string(j.scope.Kind)))
	}
}

// publish enqueues without blocking. A stopped hub or a full queue drops the
// event with a log line; callers never see an error.
func (h *Hub) publish(env events.Envelope, scope events.Scope) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		h.logger.Warn("publish on stopped hub dropped", zap.String("event_type", string(env.EventType)))
		return
	}
	select {
	case h.jobs <- job{env: env, scope: scope}:
	default:
		h.logger.Warn("publish queue full, event dropped", zap.String("event_type", string(env.EventType)))
	}
}

// BroadcastTaskEvent publishes a task event to the task's project room.
// Room broadcasts from this API are sender-inclusive: the actor's own
// connections receive the event too.
func (h *Hub) BroadcastTaskEvent(t events.Type, p events.TaskPayload, actorID string) {
	if p.ProjectID == "" {
		h.logger.Warn("task event without project dropped", zap.String("event_type", string(t)))
		return
	}
	h.publish(events.NewTaskEvent(t, p, actorID), events.RoomScope(p.ProjectID))
}

// BroadcastCommentEvent publishes a comment event to its project room.
func (h *Hub) BroadcastCommentEvent(t events.Type, p events.CommentPayload, actorID string) {
	if p.ProjectID == "" {
		h.logger.Warn("comment event without project dropped", zap.String("event_type", string(t)))
		return
	}
	h.publish(events.NewCommentEvent(t, p, actorID), events.RoomScope(p.ProjectID))
}

// BroadcastProjectEvent publishes a project event to its room.
func (h *Hub) BroadcastProjectEvent(t events.Type, p events.ProjectPayload, actorID string) {
	if p.ProjectID == "" {
		h.logger.Warn("project event without project dropped", zap.String("event_type", string(t)))
		return
	}
	h.publish(events.NewProjectEvent(t, p, actorID), events.RoomScope(p.ProjectID))
}

// BroadcastSprintEvent publishes a sprint event to its project room.
func (h *Hub) BroadcastSprintEvent(t events.Type, p events.SprintPayload, actorID string) {
	if p.ProjectID == "" {
		h.logger.Warn("sprint event without project dropped", zap.String("event_type", string(t)))
		return
	}
	h.publish(events.NewSprintEvent(t, p, actorID), events.RoomScope(p.ProjectID))
}

// BroadcastTimeEvent publishes a time-tracking event to its project room.
func (h *Hub) BroadcastTimeEvent(t events.Type, p events.TimePayload, actorID string) {
	if p.ProjectID == "" {
		h.logger.Warn("time event without project dropped", zap.String("event_type", string(t)))
		return
	}
	h.publish(events.NewTimeEvent(t, p, actorID), events.RoomScope(p.ProjectID))
}

// SendNotification publishes a notification to every connection of one user.
func (h *Hub) SendNotification(userID, title, message, notificationType, actionURL string) {
	if userID == "" {
		h.logger.Warn("notification without user dropped")
		return
	}
	p := events.NotificationPayload{
		Title:            title,
		Message:          message,
		NotificationType: notificationType,
		ActionURL:        actionURL,
	}
	h.publish(events.NewNotificationEvent(p, "", userID), events.UserScope(userID))
}
