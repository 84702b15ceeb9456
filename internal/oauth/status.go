package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/drixzor/drode/internal/store"
)

// Status describes the stored connection for one provider.
type Status struct {
	Provider    string          `json:"provider"`
	Connected   bool            `json:"connected"`
	AccountInfo json.RawMessage `json:"accountInfo,omitempty"`
	ExpiresAt   *int64          `json:"expiresAt,omitempty"`
	Scope       string          `json:"scope,omitempty"`
	Configured  bool            `json:"configured"`
}

// Status reports every supported provider in display order.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, len(Providers))
	for _, p := range Providers {
		st, err := m.providerStatus(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Manager) providerStatus(ctx context.Context, p Provider) (Status, error) {
	st, err := m.connection(ctx, p)
	if err != nil {
		return Status{}, err
	}
	// Configured follows the environment, not the cache.
	if cfg, ok := m.providers[p]; ok {
		st.Configured = m.env(cfg.ClientIDEnv) != ""
	}
	return st, nil
}

// connection returns the stored token metadata of p, cached until the token
// changes or the cache entry expires.
func (m *Manager) connection(ctx context.Context, p Provider) (Status, error) {
	if v, ok := m.status.Get(string(p)); ok {
		return v.(Status), nil
	}
	st := Status{Provider: string(p)}
	tok, err := m.tokens.GetToken(ctx, string(p))
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return Status{}, fmt.Errorf("load %s token: %w", p, err)
	default:
		st.Connected = true
		st.AccountInfo = tok.AccountInfo
		st.ExpiresAt = tok.ExpiresAt
		st.Scope = tok.Scope
	}
	m.status.Set(string(p), st, cache.DefaultExpiration)
	return st, nil
}

// Revoke forgets the stored token for provider. Revoking a provider that
// is not connected is not an error.
func (m *Manager) Revoke(ctx context.Context, name string) error {
	p, _, err := m.provider(name)
	if err != nil {
		return err
	}
	defer m.status.Delete(string(p))
	if err := m.tokens.DeleteToken(ctx, string(p)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("revoke %s: %w", p, err)
	}
	m.logger.Info("token revoked", "provider", p)
	return nil
}

// AccessToken returns the stored access token for provider.
func (m *Manager) AccessToken(ctx context.Context, name string) (string, error) {
	p, _, err := m.provider(name)
	if err != nil {
		return "", err
	}
	tok, err := m.tokens.GetToken(ctx, string(p))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w to %s", ErrNotConnected, p)
	}
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
