package store

import "encoding/json"

// Well-known setting keys.
const (
	SettingCurrentProject = "current_project"
	SettingDangerousMode  = "dangerous_mode"
)

// MaxRecentProjects caps the recent project list.
const MaxRecentProjects = 10

// Message roles accepted by the store.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultActivityLimit applies when a query does not set one.
const DefaultActivityLimit = 100

// Conversation summarises one chat thread of a project. Times are epoch millis.
type Conversation struct {
	ID           string `json:"id"`
	ProjectPath  string `json:"projectPath"`
	Name         string `json:"name"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	IsActive     bool   `json:"isActive"`
	MessageCount int    `json:"messageCount"`
}

// Message is one entry of a conversation. The JSON fields are stored verbatim.
type Message struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Timestamp   int64           `json:"timestamp"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	ToolUses    json.RawMessage `json:"toolUses,omitempty"`
	ToolResults json.RawMessage `json:"toolResults,omitempty"`
}

// SearchHit is a full-text match inside a project's conversations.
type SearchHit struct {
	MessageID        string `json:"messageId"`
	ConversationID   string `json:"conversationId"`
	ConversationName string `json:"conversationName"`
	Snippet          string `json:"snippet"`
}

// ActivityEvent is an append-only log entry shown in the activity feed.
type ActivityEvent struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"eventId"`
	ProjectPath string          `json:"projectPath"`
	Category    string          `json:"category"`
	EventType   string          `json:"eventType"`
	Title       string          `json:"title"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	Severity    string          `json:"severity"`
	SourceID    string          `json:"sourceId,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
}

// ActivityQuery selects activity newest first. Category and BeforeID are
// optional; Limit <= 0 means DefaultActivityLimit.
type ActivityQuery struct {
	ProjectPath string
	Category    string
	BeforeID    int64
	Limit       int
}

// OAuthToken is the credential kept per provider. ExpiresAt is epoch seconds.
type OAuthToken struct {
	Provider     string          `json:"provider"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	ExpiresAt    *int64          `json:"expiresAt,omitempty"`
	Scope        string          `json:"scope,omitempty"`
	AccountInfo  json.RawMessage `json:"accountInfo,omitempty"`
	UpdatedAt    int64           `json:"updatedAt"`
}
