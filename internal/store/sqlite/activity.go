package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/drixzor/drode/internal/store"
)

// InsertActivity appends ev, filling EventID, Severity and CreatedAt when unset.
func (s *DB) InsertActivity(ctx context.Context, ev store.ActivityEvent) (store.ActivityEvent, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Severity == "" {
		ev.Severity = "info"
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = s.millis()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_events(event_id, project_path, category, event_type, title, detail_json, severity, source_id, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.ProjectPath, ev.Category, ev.EventType, ev.Title,
		nullJSON(ev.Detail), ev.Severity, nullString(ev.SourceID), ev.CreatedAt)
	if err != nil {
		return store.ActivityEvent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.ActivityEvent{}, err
	}
	ev.ID = id
	return ev, nil
}

func (s *DB) QueryActivity(ctx context.Context, q store.ActivityQuery) ([]store.ActivityEvent, error) {
	var (
		where = []string{"project_path = ?"}
		args  = []any{q.ProjectPath}
	)
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.BeforeID > 0 {
		where = append(where, "id < ?")
		args = append(args, q.BeforeID)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultActivityLimit
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, project_path, category, event_type, title, detail_json, severity, source_id, created_at
		FROM activity_events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []store.ActivityEvent{}
	for rows.Next() {
		var (
			ev             store.ActivityEvent
			detail, source sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.ProjectPath, &ev.Category, &ev.EventType, &ev.Title,
			&detail, &ev.Severity, &source, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Detail = rawJSON(detail)
		ev.SourceID = source.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *DB) ClearActivity(ctx context.Context, projectPath string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_events WHERE project_path = ?`, projectPath)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeActivityBefore deletes events of every project older than cutoffMillis.
func (s *DB) PurgeActivityBefore(ctx context.Context, cutoffMillis int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_events WHERE created_at < ?`, cutoffMillis)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
