// Package events defines the closed set of real-time events exchanged with
// clients, the wire envelope used in both directions, and the delivery scope
// attached to each outbound event.
package events

import (
	"time"
)

// Type identifies an event on the wire. The set is closed: both encode and
// decode paths switch over these constants, so adding an event kind means
// touching every switch.
type Type string

// Task events.
const (
	TypeTaskCreated  Type = "task_created"
	TypeTaskUpdated  Type = "task_updated"
	TypeTaskMoved    Type = "task_moved"
	TypeTaskDeleted  Type = "task_deleted"
	TypeTaskAssigned Type = "task_assigned"
)

// Comment events.
const (
	TypeCommentAdded   Type = "comment_added"
	TypeCommentUpdated Type = "comment_updated"
	TypeCommentDeleted Type = "comment_deleted"
)

// Project events.
const (
	TypeProjectUpdated       Type = "project_updated"
	TypeProjectMemberAdded   Type = "project_member_added"
	TypeProjectMemberRemoved Type = "project_member_removed"
)

// Sprint events.
const (
	TypeSprintStarted   Type = "sprint_started"
	TypeSprintCompleted Type = "sprint_completed"
	TypeSprintUpdated   Type = "sprint_updated"
)

// Time-tracking events.
const (
	TypeTimerStarted   Type = "timer_started"
	TypeTimerStopped   Type = "timer_stopped"
	TypeTimeEntryAdded Type = "time_entry_added"
)

// Presence events.
const (
	TypeUserOnline  Type = "user_online"
	TypeUserOffline Type = "user_offline"
)

// System events.
const (
	TypeError        Type = "error"
	TypeNotification Type = "notification"
	TypePing         Type = "ping"
	TypePong         Type = "pong"
)

// Client control tags. These appear only in inbound messages; ping is shared
// with the outbound set.
const (
	TypeJoinProject  Type = "join_project"
	TypeLeaveProject Type = "leave_project"
)

// Envelope is the wire message exchanged over the socket. Outbound events
// always carry all five fields; project_id and user_id are null when the
// event has no room or user affinity. Envelopes are value objects: built
// once by a factory and never mutated afterwards.
type Envelope struct {
	EventType Type    `json:"event_type"`
	Data      Payload `json:"data"`
	ProjectID *string `json:"project_id"`
	UserID    *string `json:"user_id"`
	Timestamp string  `json:"timestamp"`
}

// ControlMessage is the inbound subset of the envelope. Clients send only
// the tag and, for room messages, the operative project id.
type ControlMessage struct {
	EventType Type   `json:"event_type"`
	ProjectID string `json:"project_id,omitempty"`
}

// ScopeKind selects the recipient set for an outbound event.
type ScopeKind string

const (
	ScopeRoom   ScopeKind = "room"   // every connection joined to a project room
	ScopeUser   ScopeKind = "user"   // every connection of one user
	ScopeGlobal ScopeKind = "global" // every connection
	ScopeReply  ScopeKind = "reply"  // the sending connection only
)

// Scope pairs a kind with its target. Exactly one of Room and UserID is set
// for room and user scopes; both are empty for global and reply scopes.
type Scope struct {
	Kind   ScopeKind
	Room   string
	UserID string
}

func RoomScope(projectID string) Scope { return Scope{Kind: ScopeRoom, Room: projectID} }
func UserScope(userID string) Scope    { return Scope{Kind: ScopeUser, UserID: userID} }
func GlobalScope() Scope               { return Scope{Kind: ScopeGlobal} }

// now returns the publish-time timestamp. Clients never supply timestamps.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
