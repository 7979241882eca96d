package events

// Payload is the closed set of event data records. The marker method keeps
// the union closed to this package; every payload carries semantic fields
// only (ids rendered as strings, no transport types).
type Payload interface {
	isPayload()
}

// TaskPayload describes a task mutation.
type TaskPayload struct {
	TaskID      string `json:"task_id"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Status      string `json:"status,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	StoryPoints int    `json:"story_points,omitempty"`
}

// CommentPayload describes a comment mutation on a task.
type CommentPayload struct {
	CommentID string `json:"comment_id"`
	TaskID    string `json:"task_id"`
	ProjectID string `json:"project_id"`
	Content   string `json:"content"`
	AuthorID  string `json:"author_id"`
}

// ProjectPayload describes a project-level change.
type ProjectPayload struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SprintPayload describes a sprint lifecycle change.
type SprintPayload struct {
	SprintID  string `json:"sprint_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// TimePayload describes timer activity or a recorded time entry.
type TimePayload struct {
	TaskID          string `json:"task_id"`
	ProjectID       string `json:"project_id"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	UserID          string `json:"user_id"`
}

// PresencePayload announces a user going online or offline.
type PresencePayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// ErrorPayload reports a protocol error back to the offending connection.
type ErrorPayload struct {
	Code    string         `json:"error_code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NotificationPayload carries a directed user notification.
type NotificationPayload struct {
	Title            string `json:"title"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
	ActionURL        string `json:"action_url,omitempty"`
}

// WelcomePayload is sent once per connection after a successful handshake.
type WelcomePayload struct {
	ConnectionID  string `json:"connection_id"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
}

// RoomAckPayload acknowledges a join or leave back to the sender.
type RoomAckPayload struct {
	ProjectID    string `json:"project_id"`
	ConnectionID string `json:"connection_id"`
	Message      string `json:"message"`
}

// PongPayload answers a client ping.
type PongPayload struct {
	Timestamp string `json:"timestamp"`
}

func (TaskPayload) isPayload()         {}
func (CommentPayload) isPayload()      {}
func (ProjectPayload) isPayload()      {}
func (SprintPayload) isPayload()       {}
func (TimePayload) isPayload()         {}
func (PresencePayload) isPayload()     {}
func (ErrorPayload) isPayload()        {}
func (NotificationPayload) isPayload() {}
func (WelcomePayload) isPayload()      {}
func (RoomAckPayload) isPayload()      {}
func (PongPayload) isPayload()         {}
