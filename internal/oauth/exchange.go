package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/metrics"
	"github.com/drixzor/drode/internal/store"
)

const userAgent = "Drode-IDE"

type tokenResponse struct {
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	ExpiresIn        *float64 `json:"expires_in"`
	Scope            string   `json:"scope"`
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
}

// Exchange trades an authorization code for a token, stores it and emits
// oauth-complete. Every failure is emitted as oauth-error and returned.
func (m *Manager) Exchange(ctx context.Context, p Provider, code, verifier string) error {
	cfg, ok := m.providers[p]
	if !ok {
		return m.fail(p, fmt.Sprintf("Unknown provider: %s", p))
	}
	clientID := m.env(cfg.ClientIDEnv)
	if clientID == "" {
		return m.fail(p, (&ConfigError{Var: cfg.ClientIDEnv}).Error())
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", m.redirectURI)
	form.Set("client_id", clientID)
	form.Set("code_verifier", verifier)
	if secret := m.env(cfg.SecretEnv()); secret != "" {
		form.Set("client_secret", secret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return m.fail(p, fmt.Sprintf("Token exchange failed: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return m.fail(p, fmt.Sprintf("Token exchange failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return m.fail(p, fmt.Sprintf("Token exchange failed: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return m.fail(p, fmt.Sprintf("Token exchange failed: %d %s", resp.StatusCode, truncate(string(body), 256)))
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return m.fail(p, fmt.Sprintf("Failed to parse token response: %v", err))
	}
	if tr.AccessToken == "" {
		msg := "No access token in response"
		if tr.Error != "" {
			msg += ": " + tr.Error
			if tr.ErrorDescription != "" {
				msg += " (" + tr.ErrorDescription + ")"
			}
		}
		return m.fail(p, msg)
	}

	info := m.accountInfo(ctx, p, cfg, tr.AccessToken)
	now := m.now()
	tok := store.OAuthToken{
		Provider:     string(p),
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
		UpdatedAt:    now.UnixMilli(),
	}
	if tr.ExpiresIn != nil {
		exp := now.Unix() + int64(*tr.ExpiresIn)
		tok.ExpiresAt = &exp
	}
	if info != nil {
		if raw, err := json.Marshal(info); err == nil {
			tok.AccountInfo = raw
		}
	}
	if err := m.tokens.PutToken(ctx, tok); err != nil {
		return m.fail(p, fmt.Sprintf("Failed to store token: %v", err))
	}
	m.status.Delete(string(p))

	metrics.IncOAuthFlow(string(p), "completed")
	m.logger.Info("authorization complete", "provider", p)
	m.emit.Emit(events.TopicOAuthComplete, events.OAuthComplete{Provider: string(p), AccountInfo: info})
	return nil
}

// accountInfo fetches display metadata for the token owner. Failures are
// logged and yield nil; they never fail the flow.
func (m *Manager) accountInfo(ctx context.Context, p Provider, cfg ProviderConfig, token string) map[string]any {
	switch p {
	case GitHub:
		var u struct {
			Login     string  `json:"login"`
			AvatarURL string  `json:"avatar_url"`
			Name      *string `json:"name"`
		}
		if err := m.getJSON(ctx, cfg.ProfileURL, token, &u); err != nil {
			m.logger.Warn("account lookup failed", "provider", p, "error", err)
			return nil
		}
		return map[string]any{"username": u.Login, "avatar_url": u.AvatarURL, "name": u.Name}
	case Vercel:
		var u struct {
			User struct {
				Username string  `json:"username"`
				Name     *string `json:"name"`
			} `json:"user"`
		}
		if err := m.getJSON(ctx, cfg.ProfileURL, token, &u); err != nil {
			m.logger.Warn("account lookup failed", "provider", p, "error", err)
			return nil
		}
		return map[string]any{"username": u.User.Username, "name": u.User.Name}
	case Supabase:
		return map[string]any{"connected": true}
	}
	return nil
}

func (m *Manager) getJSON(ctx context.Context, rawURL, token string, v any) error {
	if rawURL == "" {
		return fmt.Errorf("no profile endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
