package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/drixzor/drode/internal/store"
)

const defaultSearchLimit = 50

func (s *DB) ListConversations(ctx context.Context, projectPath string) ([]store.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.project_path, c.name, c.created_at, c.updated_at, c.is_active,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.project_path = ?
		ORDER BY c.updated_at DESC`, projectPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []store.Conversation{}
	for rows.Next() {
		var c store.Conversation
		if err := rows.Scan(&c.ID, &c.ProjectPath, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.IsActive, &c.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateConversation adds an empty conversation and makes it the project's
// active one.
func (s *DB) CreateConversation(ctx context.Context, projectPath, name string) (store.Conversation, error) {
	now := s.millis()
	c := store.Conversation{
		ID:          uuid.NewString(),
		ProjectPath: projectPath,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_active = 0 WHERE project_path = ?`, projectPath); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations(id, project_path, name, created_at, updated_at, is_active)
			VALUES(?, ?, ?, ?, ?, 1)`, c.ID, c.ProjectPath, c.Name, c.CreatedAt, c.UpdatedAt)
		return err
	})
	if err != nil {
		return store.Conversation{}, err
	}
	return c, nil
}

func (s *DB) GetConversation(ctx context.Context, id string) (store.Conversation, []store.Message, error) {
	var c store.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_path, name, created_at, updated_at, is_active
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectPath, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Conversation{}, nil, store.ErrNotFound
	}
	if err != nil {
		return store.Conversation{}, nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, metadata_json, tool_uses_json, tool_results_json
		FROM messages WHERE conversation_id = ? ORDER BY sort_order ASC`, id)
	if err != nil {
		return store.Conversation{}, nil, err
	}
	defer func() { _ = rows.Close() }()
	msgs := []store.Message{}
	for rows.Next() {
		var (
			m                  store.Message
			meta, uses, result sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp, &meta, &uses, &result); err != nil {
			return store.Conversation{}, nil, err
		}
		m.Metadata, m.ToolUses, m.ToolResults = rawJSON(meta), rawJSON(uses), rawJSON(result)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return store.Conversation{}, nil, err
	}
	c.MessageCount = len(msgs)
	return c, msgs, nil
}

// SaveMessages replaces the conversation's messages with msgs, in order.
func (s *DB) SaveMessages(ctx context.Context, conversationID string, msgs []store.Message) error {
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser, store.RoleAssistant, store.RoleSystem:
		default:
			return fmt.Errorf("%w: message role %q", store.ErrInvalid, m.Role)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.millis(), conversationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
			return err
		}
		for i, m := range msgs {
			id := m.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages(id, conversation_id, role, content, timestamp, metadata_json, tool_uses_json, tool_results_json, sort_order)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, conversationID, m.Role, m.Content, m.Timestamp,
				nullJSON(m.Metadata), nullJSON(m.ToolUses), nullJSON(m.ToolResults), i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DB) RenameConversation(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET name = ?, updated_at = ? WHERE id = ?`, name, s.millis(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation and its messages. Deleting the
// active conversation leaves the project without an active one.
func (s *DB) DeleteConversation(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		return err
	})
}

// ActiveConversation returns the active conversation id, or "" when none.
func (s *DB) ActiveConversation(ctx context.Context, projectPath string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE project_path = ? AND is_active = 1 LIMIT 1`, projectPath).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *DB) SetActiveConversation(ctx context.Context, projectPath, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_active = 0 WHERE project_path = ?`, projectPath); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE conversations SET is_active = 1 WHERE id = ? AND project_path = ?`, id, projectPath)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// SearchMessages runs a full-text query over message content within one
// project. Each whitespace-separated term is matched as a quoted phrase.
func (s *DB) SearchMessages(ctx context.Context, projectPath, query string, limit int) ([]store.SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return []store.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, c.name,
			snippet(messages_fts, 0, '<mark>', '</mark>', '...', 32)
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.rowid
		JOIN conversations c ON m.conversation_id = c.id
		WHERE c.project_path = ? AND messages_fts MATCH ?
		ORDER BY rank LIMIT ?`, projectPath, match, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []store.SearchHit{}
	for rows.Next() {
		var h store.SearchHit
		if err := rows.Scan(&h.MessageID, &h.ConversationID, &h.ConversationName, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
