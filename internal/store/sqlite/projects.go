package sqlite

import (
	"context"
	"database/sql"

	"github.com/drixzor/drode/internal/store"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *DB) RecentProjects(ctx context.Context) ([]string, error) {
	return recentProjects(ctx, s.db)
}

// TouchRecentProject moves path to the front of the list and keeps at most
// store.MaxRecentProjects entries.
func (s *DB) TouchRecentProject(ctx context.Context, path string) ([]string, error) {
	var out []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rest, err := recentProjects(ctx, tx)
		if err != nil {
			return err
		}
		list := []string{path}
		for _, p := range rest {
			if p != path {
				list = append(list, p)
			}
		}
		if len(list) > store.MaxRecentProjects {
			list = list[:store.MaxRecentProjects]
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recent_projects`); err != nil {
			return err
		}
		if err := insertRecent(ctx, tx, list); err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

// RemoveRecentProject drops path and renumbers the remaining entries.
func (s *DB) RemoveRecentProject(ctx context.Context, path string) ([]string, error) {
	var out []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recent_projects WHERE path = ?`, path); err != nil {
			return err
		}
		rest, err := recentProjects(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recent_projects`); err != nil {
			return err
		}
		if err := insertRecent(ctx, tx, rest); err != nil {
			return err
		}
		out = rest
		return nil
	})
	return out, err
}

// insertRecent writes paths with dense positions starting at 0.
func insertRecent(ctx context.Context, tx *sql.Tx, paths []string) error {
	for i, p := range paths {
		if _, err := tx.ExecContext(ctx, `INSERT INTO recent_projects(path, position) VALUES(?, ?)`, p, i); err != nil {
			return err
		}
	}
	return nil
}

func recentProjects(ctx context.Context, q queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT path FROM recent_projects ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
