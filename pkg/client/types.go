package client

import (
	"encoding/json"
	"time"
)

// RunRequest starts a shell command in the daemon's terminal engine.
type RunRequest struct {
	SessionID string            `json:"sessionId"`
	Command   string            `json:"command"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Output is the payload of terminal-output and claude-output events.
type Output struct {
	SessionID string `json:"sessionId,omitempty"`
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	Code      *int   `json:"code,omitempty"`
}

// Event is one frame of the daemon's event stream. Payload is decoded
// according to Event.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Output decodes the payload of a process output event.
func (e Event) Output() (Output, error) {
	var o Output
	err := json.Unmarshal(e.Payload, &o)
	return o, err
}

// OAuthStatus mirrors one provider entry of the OAuth status endpoint.
type OAuthStatus struct {
	Provider    string          `json:"provider"`
	Connected   bool            `json:"connected"`
	Configured  bool            `json:"configured"`
	AccountInfo json.RawMessage `json:"accountInfo,omitempty"`
	ExpiresAt   *int64          `json:"expiresAt,omitempty"`
	Scope       string          `json:"scope,omitempty"`
}

// Port is one listening TCP socket.
type Port struct {
	Port        uint32 `json:"port"`
	PID         int32  `json:"pid"`
	ProcessName string `json:"processName"`
	State       string `json:"state"`
	Protocol    string `json:"protocol"`
}

// ActivityEvent is one entry of the activity feed.
type ActivityEvent struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"eventId"`
	ProjectPath string          `json:"projectPath"`
	Category    string          `json:"category"`
	EventType   string          `json:"eventType"`
	Title       string          `json:"title"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	Severity    string          `json:"severity"`
	CreatedAt   int64           `json:"createdAt"`
}

// ActivityQuery selects activity entries; zero fields are omitted.
type ActivityQuery struct {
	Project  string
	Category string
	Before   int64
	Limit    int
}

// envelope is the body of every API response.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}
