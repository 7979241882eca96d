package websocket

import "errors"

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
)

// Protocol error codes reported to clients inside error envelopes.
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeMissingProjectID = "MISSING_PROJECT_ID"
	CodeMessageError     = "MESSAGE_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
)
