package events

import "time"

// Topics published to the UI layer.
const (
	TopicTerminal      = "terminal-output"
	TopicAssistant     = "claude-output"
	TopicOAuthComplete = "oauth-complete"
	TopicOAuthError    = "oauth-error"
	TopicActivity      = "activity-event"
)

// Output kinds carried by process output events.
const (
	KindStdout = "stdout"
	KindStderr = "stderr"
	KindDone   = "done"
	KindExit   = "exit"
)

// Event is a single named notification with an arbitrary JSON-encodable payload.
type Event struct {
	Topic   string    `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Emitter delivers events to whoever is listening. Emit must not block on
// slow consumers; delivery is fire-and-forget.
type Emitter interface {
	Emit(topic string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(topic string, payload any)

func (f EmitterFunc) Emit(topic string, payload any) { f(topic, payload) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(string, any) {})

// ProcessOutput is the payload for terminal and assistant output events.
// SessionID is empty for assistant output, which is not tagged per session.
// Data is always present so that a blank line arrives as "".
type ProcessOutput struct {
	SessionID string `json:"sessionId,omitempty"`
	Type      string `json:"type"`
	Data      string `json:"data"`
	Code      *int   `json:"code,omitempty"`
}

// OAuthComplete is the payload of a successful authorization.
type OAuthComplete struct {
	Provider    string         `json:"provider"`
	AccountInfo map[string]any `json:"accountInfo"`
}

// OAuthError is the payload of a failed authorization.
type OAuthError struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}
