package hub

import "errors"

var (
	ErrAlreadyRunning = errors.New("hub already running")
	ErrNotRunning     = errors.New("hub not running")
)
