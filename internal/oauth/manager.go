package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/metrics"
	"github.com/drixzor/drode/internal/store"
)

const (
	DefaultCallbackAddr = "127.0.0.1:17391"
	DefaultRedirectURI  = "http://localhost:17391/callback"
	DefaultTimeout      = 300 * time.Second

	exchangeTimeout = 60 * time.Second
	statusCacheTTL  = 5 * time.Minute
)

// Config wires a Manager. Zero values fall back to the production defaults.
type Config struct {
	Providers    map[Provider]ProviderConfig
	CallbackAddr string
	RedirectURI  string
	Timeout      time.Duration
	Tokens       store.Tokens
	Emitter      events.Emitter
	Opener       Opener
	HTTPClient   *http.Client
	// LookupEnv resolves client ids and secrets; defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Logger    *slog.Logger
}

// Manager runs browser based PKCE authorization flows and owns the stored
// provider tokens.
type Manager struct {
	providers    map[Provider]ProviderConfig
	callbackAddr string
	redirectURI  string
	timeout      time.Duration
	tokens       store.Tokens
	emit         events.Emitter
	opener       Opener
	client       *http.Client
	lookupEnv    func(string) (string, bool)
	logger       *slog.Logger

	pending *pendingTable
	status  *cache.Cache
	listen  func(network, addr string) (net.Listener, error)
	now     func() time.Time
}

func New(cfg Config) *Manager {
	m := &Manager{
		providers:    cfg.Providers,
		callbackAddr: cfg.CallbackAddr,
		redirectURI:  cfg.RedirectURI,
		timeout:      cfg.Timeout,
		tokens:       cfg.Tokens,
		emit:         cfg.Emitter,
		opener:       cfg.Opener,
		client:       cfg.HTTPClient,
		lookupEnv:    cfg.LookupEnv,
		logger:       cfg.Logger,
		pending:      newPendingTable(),
		status:       cache.New(statusCacheTTL, 2*statusCacheTTL),
		listen:       net.Listen,
		now:          time.Now,
	}
	if m.providers == nil {
		m.providers = DefaultProviders()
	}
	if m.callbackAddr == "" {
		m.callbackAddr = DefaultCallbackAddr
	}
	if m.redirectURI == "" {
		m.redirectURI = DefaultRedirectURI
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.emit == nil {
		m.emit = events.Discard
	}
	if m.opener == nil {
		m.opener = SystemBrowser{}
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: 30 * time.Second}
	}
	if m.lookupEnv == nil {
		m.lookupEnv = os.LookupEnv
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "oauth")
	return m
}

func (m *Manager) provider(name string) (Provider, ProviderConfig, error) {
	p, err := ParseProvider(name)
	if err != nil {
		return "", ProviderConfig{}, err
	}
	cfg, ok := m.providers[p]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, cfg, nil
}

func (m *Manager) env(key string) string {
	v, ok := m.lookupEnv(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Start begins an authorization flow for provider and returns the URL that
// was handed to the browser. Configuration problems are returned directly;
// everything after that is reported through oauth-complete or oauth-error.
func (m *Manager) Start(name string) (string, error) {
	p, cfg, err := m.provider(name)
	if err != nil {
		return "", err
	}
	clientID := m.env(cfg.ClientIDEnv)
	if clientID == "" {
		return "", &ConfigError{Var: cfg.ClientIDEnv}
	}
	state, err := randomString(stateLength)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier, err := randomString(verifierLength)
	if err != nil {
		return "", fmt.Errorf("generate verifier: %w", err)
	}
	authURL, err := cfg.authorizeURL(clientID, m.redirectURI, state, challengeFor(verifier))
	if err != nil {
		return "", fmt.Errorf("build authorize url: %w", err)
	}

	n := m.pending.put(state, pendingFlow{provider: p, verifier: verifier, createdAt: m.now()})
	metrics.SetOAuthPending(n)
	metrics.IncOAuthFlow(string(p), "started")
	m.logger.Info("authorization requested", "provider", p)

	go m.awaitCallback(p, state)

	if err := m.opener.Open(authURL); err != nil {
		m.logger.Warn("could not open browser", "provider", p, "error", err)
	}
	return authURL, nil
}

// Pending returns the number of flows awaiting their redirect.
func (m *Manager) Pending() int { return m.pending.len() }

func (m *Manager) evict(state string) {
	if _, ok, n := m.pending.take(state); ok {
		metrics.SetOAuthPending(n)
	}
}

func (m *Manager) fail(p Provider, msg string) error {
	metrics.IncOAuthFlow(string(p), "failed")
	m.logger.Warn("authorization failed", "provider", p, "error", msg)
	m.emit.Emit(events.TopicOAuthError, events.OAuthError{Provider: string(p), Error: msg})
	return errors.New(msg)
}
