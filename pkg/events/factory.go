package events

import "fmt"

// NewTaskEvent builds a room-scoped task event. The actor id is recorded on
// the envelope when known; the room is the task's project.
func NewTaskEvent(t Type, p TaskPayload, actorID string) Envelope {
	return Envelope{
		EventType: t,
		Data:      p,
		ProjectID: optional(p.ProjectID),
		UserID:    optional(actorID),
		Timestamp: now(),
	}
}

// NewCommentEvent builds a room-scoped comment event.
func NewCommentEvent(t Type, p CommentPayload, actorID string) Envelope {
	return Envelope{
		EventType: t,
		Data:      p,
		ProjectID: optional(p.ProjectID),
		UserID:    optional(actorID),
		Timestamp: now(),
	}
}

// NewProjectEvent builds a room-scoped project event.
func NewProjectEvent(t Type, p ProjectPayload, actorID string) Envelope {
	return Envelope{
		EventType: t,
		Data:      p,
		ProjectID: optional(p.ProjectID),
		UserID:    optional(actorID),
		Timestamp: now(),
	}
}

// NewSprintEvent builds a room-scoped sprint event.
func NewSprintEvent(t Type, p SprintPayload, actorID string) Envelope {
	return Envelope{
		EventType: t,
		Data:      p,
		ProjectID: optional(p.ProjectID),
		UserID:    optional(actorID),
		Timestamp: now(),
	}
}

// NewTimeEvent builds a room-scoped time-tracking event. When no explicit
// actor is given the payload's user is recorded instead.
func NewTimeEvent(t Type, p TimePayload, actorID string) Envelope {
	if actorID == "" {
		actorID = p.UserID
	}
	return Envelope{
		EventType: t,
		Data:      p,
		ProjectID: optional(p.ProjectID),
		UserID:    optional(actorID),
		Timestamp: now(),
	}
}

// NewPresenceEvent builds a global presence event for one user.
func NewPresenceEvent(t Type, userID string, online bool) Envelope {
	status := "offline"
	if online {
		status = "online"
	}
	return Envelope{
		EventType: t,
		Data: PresencePayload{
			UserID:   userID,
			Username: fmt.Sprintf("user_%s", userID),
			Status:   status,
		},
		UserID:    optional(userID),
		Timestamp: now(),
	}
}

// NewErrorEvent builds a reply-scoped error event.
func NewErrorEvent(code, message string, details map[string]any, projectID, userID string) Envelope {
	return Envelope{
		EventType: TypeError,
		Data:      ErrorPayload{Code: code, Message: message, Details: details},
		ProjectID: optional(projectID),
		UserID:    optional(userID),
		Timestamp: now(),
	}
}

// NewNotificationEvent builds a user-scoped notification event.
func NewNotificationEvent(p NotificationPayload, projectID, userID string) Envelope {
	return Envelope{
		EventType: TypeNotification,
		Data:      p,
		ProjectID: optional(projectID),
		UserID:    optional(userID),
		Timestamp: now(),
	}
}

// NewWelcomeEvent builds the first event a connection receives. Authenticated
// connections are welcomed under the presence tag, anonymous ones under ping,
// mirroring how clients distinguish the two handshake outcomes.
func NewWelcomeEvent(connectionID, userID string, authenticated bool) Envelope {
	tag := TypePing
	if authenticated {
		tag = TypeUserOnline
	}
	return Envelope{
		EventType: tag,
		Data: WelcomePayload{
			ConnectionID:  connectionID,
			Message:       "connection established",
			Authenticated: authenticated,
		},
		UserID:    optional(userID),
		Timestamp: now(),
	}
}

// NewRoomAckEvent acknowledges a join or leave to the sender only.
func NewRoomAckEvent(t Type, projectID, connectionID, userID, message string) Envelope {
	return Envelope{
		EventType: t,
		Data: RoomAckPayload{
			ProjectID:    projectID,
			ConnectionID: connectionID,
			Message:      message,
		},
		ProjectID: optional(projectID),
		UserID:    optional(userID),
		Timestamp: now(),
	}
}

// NewPongEvent answers a ping, reply-scoped.
func NewPongEvent() Envelope {
	ts := now()
	return Envelope{
		EventType: TypePong,
		Data:      PongPayload{Timestamp: ts},
		Timestamp: ts,
	}
}
