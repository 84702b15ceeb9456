package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid wraps rejected input such as an unknown message role.
	ErrInvalid = errors.New("invalid input")
)

// Settings is a string key/value store.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Projects keeps the most-recent-first project list.
type Projects interface {
	RecentProjects(ctx context.Context) ([]string, error)
	// TouchRecentProject moves path to the front and returns the new list.
	TouchRecentProject(ctx context.Context, path string) ([]string, error)
	RemoveRecentProject(ctx context.Context, path string) ([]string, error)
}

// Conversations persists chat threads and their messages.
type Conversations interface {
	ListConversations(ctx context.Context, projectPath string) ([]Conversation, error)
	CreateConversation(ctx context.Context, projectPath, name string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, []Message, error)
	SaveMessages(ctx context.Context, conversationID string, msgs []Message) error
	RenameConversation(ctx context.Context, id, name string) error
	DeleteConversation(ctx context.Context, id string) error
	ActiveConversation(ctx context.Context, projectPath string) (string, error)
	SetActiveConversation(ctx context.Context, projectPath, id string) error
	SearchMessages(ctx context.Context, projectPath, query string, limit int) ([]SearchHit, error)
}

// Activity is the append-only activity log.
type Activity interface {
	InsertActivity(ctx context.Context, ev ActivityEvent) (ActivityEvent, error)
	QueryActivity(ctx context.Context, q ActivityQuery) ([]ActivityEvent, error)
	ClearActivity(ctx context.Context, projectPath string) (int64, error)
	PurgeActivityBefore(ctx context.Context, cutoffMillis int64) (int64, error)
}

// Tokens keeps one OAuth token per provider.
type Tokens interface {
	PutToken(ctx context.Context, tok OAuthToken) error
	GetToken(ctx context.Context, provider string) (OAuthToken, error)
	DeleteToken(ctx context.Context, provider string) error
	TokenProviders(ctx context.Context) ([]string, error)
}

// Store is the full persistence surface of the daemon.
type Store interface {
	Settings
	Projects
	Conversations
	Activity
	Tokens
	EnsureSchema(ctx context.Context) error
	Close() error
}
