package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider identifies an OAuth service.
type Provider string

const (
	GitHub   Provider = "github"
	Supabase Provider = "supabase"
	Vercel   Provider = "vercel"
)

// Providers lists the supported providers in display order.
var Providers = []Provider{GitHub, Supabase, Vercel}

// ProviderConfig holds the static endpoints of a provider. The client
// secret, when present, is read from ClientIDEnv + "_SECRET".
type ProviderConfig struct {
	AuthorizeURL string
	TokenURL     string
	// ProfileURL returns account metadata for a bearer token; empty skips the lookup.
	ProfileURL  string
	Scopes      string
	ClientIDEnv string
}

// SecretEnv names the optional client secret variable.
func (c ProviderConfig) SecretEnv() string { return c.ClientIDEnv + "_SECRET" }

// DefaultProviders returns the production endpoint table.
func DefaultProviders() map[Provider]ProviderConfig {
	return map[Provider]ProviderConfig{
		GitHub: {
			AuthorizeURL: "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			ProfileURL:   "https://api.github.com/user",
			Scopes:       "repo,user",
			ClientIDEnv:  "DRODE_GITHUB_CLIENT_ID",
		},
		Supabase: {
			AuthorizeURL: "https://api.supabase.com/v1/oauth/authorize",
			TokenURL:     "https://api.supabase.com/v1/oauth/token",
			Scopes:       "all",
			ClientIDEnv:  "DRODE_SUPABASE_CLIENT_ID",
		},
		Vercel: {
			AuthorizeURL: "https://vercel.com/integrations/oauth/authorize",
			TokenURL:     "https://api.vercel.com/v2/oauth/access_token",
			ProfileURL:   "https://api.vercel.com/v2/user",
			Scopes:       "",
			ClientIDEnv:  "DRODE_VERCEL_CLIENT_ID",
		},
	}
}

// ParseProvider normalises name and rejects unknown providers.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// authorizeURL builds the browser URL for one PKCE authorization request.
func (c ProviderConfig) authorizeURL(clientID, redirectURI, state, challenge string) (string, error) {
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", c.Scopes)
	q.Set("state", state)
	q.Set("response_type", "code")
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
