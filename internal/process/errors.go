package process

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessNotFound is returned by Kill for an unknown session id.
	ErrProcessNotFound = errors.New("Process not found")
	ErrSessionRequired = errors.New("session id required")
	ErrEmptyCommand    = errors.New("command required")
)

// SpawnError reports that a process could not be created: missing
// working directory, missing executable or insufficient permissions.
type SpawnError struct {
	SessionID string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn process for session %q: %v", e.SessionID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
