package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/drixzor/drode/internal/store"
)

// PutToken overwrites the provider's token.
func (s *DB) PutToken(ctx context.Context, tok store.OAuthToken) error {
	if tok.UpdatedAt == 0 {
		tok.UpdatedAt = s.millis()
	}
	var exp sql.NullInt64
	if tok.ExpiresAt != nil {
		exp = sql.NullInt64{Int64: *tok.ExpiresAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, account_info_json, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		tok.Provider, tok.AccessToken, nullString(tok.RefreshToken), exp, nullString(tok.Scope), nullJSON(tok.AccountInfo), tok.UpdatedAt)
	return err
}

func (s *DB) GetToken(ctx context.Context, provider string) (store.OAuthToken, error) {
	var (
		tok                  store.OAuthToken
		refresh, scope, acct sql.NullString
		exp                  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT provider, access_token, refresh_token, expires_at, scope, account_info_json, updated_at
		FROM oauth_tokens WHERE provider = ?`, provider).
		Scan(&tok.Provider, &tok.AccessToken, &refresh, &exp, &scope, &acct, &tok.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.OAuthToken{}, store.ErrNotFound
	}
	if err != nil {
		return store.OAuthToken{}, err
	}
	tok.RefreshToken = refresh.String
	tok.Scope = scope.String
	tok.AccountInfo = rawJSON(acct)
	if exp.Valid {
		v := exp.Int64
		tok.ExpiresAt = &v
	}
	return tok, nil
}

func (s *DB) DeleteToken(ctx context.Context, provider string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE provider = ?`, provider)
	return err
}

func (s *DB) TokenProviders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider FROM oauth_tokens ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
