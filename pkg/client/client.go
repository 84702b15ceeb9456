package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client provides HTTP client functionality to communicate with the drode daemon
type Client struct {
	baseURL string
	apiPath string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration. Token is the daemon's API token and is
// sent as a bearer credential on every request.
type Config struct {
	// BaseURL is the daemon origin, e.g. http://127.0.0.1:17390.
	BaseURL string
	// APIPath is the router base path; defaults to /api.
	APIPath string
	Timeout time.Duration
	Token   string
	Logger  *slog.Logger // Optional logger for client operations
}

// APIError is a response with success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:17390",
		APIPath: "/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new drode API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.APIPath == "" {
		config.APIPath = def.APIPath
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if !strings.Contains(config.BaseURL, "://") {
		config.BaseURL = "http://" + config.BaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiPath: "/" + strings.Trim(config.APIPath, "/"),
		token:   strings.TrimSpace(config.Token),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

func (c *Client) api(path string) string {
	return c.baseURL + c.apiPath + path
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Run starts a shell command and returns its pid.
func (c *Client) Run(ctx context.Context, req RunRequest) (int, error) {
	var out struct {
		PID int `json:"pid"`
	}
	err := c.do(ctx, http.MethodPost, c.api("/terminal/run"), req, &out)
	return out.PID, err
}

// Kill terminates a session started with Run.
func (c *Client) Kill(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, c.api("/terminal/kill"), map[string]string{"sessionId": sessionID}, nil)
}

// Configure sets the assistant's project directory.
func (c *Client) Configure(ctx context.Context, projectPath string) error {
	return c.do(ctx, http.MethodPost, c.api("/assistant/configure"), map[string]string{"projectPath": projectPath}, nil)
}

// Ask sends a message to the assistant and returns the invocation id.
func (c *Client) Ask(ctx context.Context, message, resumeID string) (string, error) {
	var out struct {
		InvocationID string `json:"invocationId"`
	}
	err := c.do(ctx, http.MethodPost, c.api("/assistant/send"), map[string]string{"message": message, "resumeId": resumeID}, &out)
	return out.InvocationID, err
}

// StopAssistant kills every running assistant invocation.
func (c *Client) StopAssistant(ctx context.Context) (int, error) {
	var out struct {
		Stopped int `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, c.api("/assistant/stop"), nil, &out)
	return out.Stopped, err
}

// OAuthStart begins an authorization flow and returns the authorize URL.
func (c *Client) OAuthStart(ctx context.Context, provider string) (string, error) {
	var out struct {
		AuthURL string `json:"authUrl"`
	}
	err := c.do(ctx, http.MethodPost, c.api("/oauth/"+url.PathEscape(provider)+"/start"), nil, &out)
	return out.AuthURL, err
}

func (c *Client) OAuthStatus(ctx context.Context) ([]OAuthStatus, error) {
	var out []OAuthStatus
	err := c.do(ctx, http.MethodGet, c.api("/oauth/status"), nil, &out)
	return out, err
}

func (c *Client) OAuthToken(ctx context.Context, provider string) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	err := c.do(ctx, http.MethodGet, c.api("/oauth/"+url.PathEscape(provider)+"/token"), nil, &out)
	return out.AccessToken, err
}

func (c *Client) OAuthRevoke(ctx context.Context, provider string) error {
	return c.do(ctx, http.MethodDelete, c.api("/oauth/"+url.PathEscape(provider)), nil, nil)
}

// Ports lists listening TCP ports.
func (c *Client) Ports(ctx context.Context) ([]Port, error) {
	var out []Port
	err := c.do(ctx, http.MethodGet, c.api("/ports"), nil, &out)
	return out, err
}

// KillPort terminates the processes holding port and returns their pids.
func (c *Client) KillPort(ctx context.Context, port uint32) ([]int32, error) {
	var out struct {
		PIDs []int32 `json:"pids"`
	}
	err := c.do(ctx, http.MethodPost, c.api("/ports/"+strconv.FormatUint(uint64(port), 10)+"/kill"), nil, &out)
	return out.PIDs, err
}

// Activity queries the activity feed, newest first.
func (c *Client) Activity(ctx context.Context, q ActivityQuery) ([]ActivityEvent, error) {
	v := url.Values{}
	if q.Project != "" {
		v.Set("project", q.Project)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Before > 0 {
		v.Set("before", strconv.FormatInt(q.Before, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	u := c.api("/activity")
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	var out []ActivityEvent
	err := c.do(ctx, http.MethodGet, u, nil, &out)
	return out, err
}

// ErrStopFollowing may be returned by a Follow callback to end the stream
// without an error.
var ErrStopFollowing = errors.New("stop following")

// Stream is an open event subscription.
type Stream struct {
	ws *websocket.Conn
}

// Subscribe opens the event stream for topics (all when empty). Events
// emitted after Subscribe returns are delivered in order.
func (c *Client) Subscribe(ctx context.Context, topics ...string) (*Stream, error) {
	u := strings.Replace(c.api("/events"), "http", "ws", 1)
	if len(topics) > 0 {
		u += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}
	ws, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: c.authHeader()})
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}
	ws.SetReadLimit(1 << 20)
	return &Stream{ws: ws}, nil
}

// Next blocks for the next event. io.EOF means the daemon closed the stream.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	var ev Event
	if err := wsjson.Read(ctx, s.ws, &ev); err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return ev, io.EOF
		}
		return ev, fmt.Errorf("read event: %w", err)
	}
	return ev, nil
}

func (s *Stream) Close() error {
	return s.ws.Close(websocket.StatusNormalClosure, "")
}

// Follow streams events for topics (all when empty) to fn until ctx is
// done, the daemon closes the stream, or fn returns an error.
func (c *Client) Follow(ctx context.Context, topics []string, fn func(Event) error) error {
	st, err := c.Subscribe(ctx, topics...)
	if err != nil {
		return err
	}
	defer func() { _ = st.ws.CloseNow() }()
	for {
		ev, err := st.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStopFollowing) {
				_ = st.Close()
				return nil
			}
			return err
		}
	}
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// do sends body as JSON and decodes the envelope's content into out.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.authHeader() {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if !env.Success {
		c.logger.Debug("API request failed", "error", env.Error, "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
