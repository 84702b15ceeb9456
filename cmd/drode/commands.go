package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drixzor/drode/internal/auth"
	"github.com/drixzor/drode/internal/config"
	"github.com/drixzor/drode/pkg/client"
)

type command struct {
	out    io.Writer
	errOut io.Writer
	global *GlobalFlags
}

// connect builds a client for f and fails fast when the daemon is down.
func (c command) connect(ctx context.Context, f APIFlags) (*client.Client, error) {
	cfg, err := clientConfig(f)
	if err != nil {
		return nil, err
	}
	api := client.New(cfg)
	if !api.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'drode serve'", f.APIUrl)
	}
	if cfg.Token, err = c.token(f); err != nil {
		return nil, err
	}
	return client.New(cfg), nil
}

// token reads the API token the daemon published for this launch.
func (c command) token(f APIFlags) (string, error) {
	path := f.TokenFile
	if path == "" {
		configPath := ""
		if c.global != nil {
			configPath = c.global.ConfigPath
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", fmt.Errorf("error loading config: %w", err)
		}
		path = cfg.Server.TokenFile
	}
	tok, err := auth.ReadTokenFile(path)
	if err != nil {
		return "", fmt.Errorf("read API token from %s: %w", path, err)
	}
	return tok, nil
}

// clientConfig splits --api-url into the daemon origin and the API path.
func clientConfig(f APIFlags) (client.Config, error) {
	raw := f.APIUrl
	if raw == "" {
		raw = defaultAPIURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return client.Config{}, fmt.Errorf("invalid --api-url %q", raw)
	}
	return client.Config{
		BaseURL: u.Scheme + "://" + u.Host,
		APIPath: u.Path,
		Timeout: f.APITimeout,
	}, nil
}

// Run starts a shell command. With Follow, the terminal topic is subscribed
// before the start request so no line is missed, and a non-zero exit code
// is returned as an error.
func (c command) Run(ctx context.Context, f RunFlags) error {
	ctx = orBackground(ctx)
	env, err := parseEnv(f.Env)
	if err != nil {
		return err
	}
	if f.SessionID == "" {
		f.SessionID = "cli-" + uuid.NewString()[:8]
	}
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}

	var stream *client.Stream
	if f.Follow {
		if stream, err = api.Subscribe(ctx, "terminal-output"); err != nil {
			return err
		}
		defer func() { _ = stream.Close() }()
	}

	pid, err := api.Run(ctx, client.RunRequest{SessionID: f.SessionID, Command: f.Command, Cwd: f.Cwd, Env: env})
	if err != nil {
		return err
	}
	if stream == nil {
		_, _ = fmt.Fprintf(c.out, "Started session %s (pid %d)\n", f.SessionID, pid)
		return nil
	}
	code, err := c.printOutput(ctx, stream, func(o client.Output) bool { return o.SessionID == f.SessionID })
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("command exited with code %d", code)
	}
	return nil
}

func (c command) Kill(ctx context.Context, f KillFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if err := api.Kill(ctx, f.SessionID); err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("session %s is not running", f.SessionID)
		}
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Killed session %s\n", f.SessionID)
	return nil
}

// Ask invokes the assistant. Assistant output is not tagged per invocation,
// so Follow prints everything on the assistant topic until the first exit.
func (c command) Ask(ctx context.Context, f AskFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if f.Project != "" {
		if err := api.Configure(ctx, f.Project); err != nil {
			return err
		}
	}

	var stream *client.Stream
	if f.Follow {
		if stream, err = api.Subscribe(ctx, "claude-output"); err != nil {
			return err
		}
		defer func() { _ = stream.Close() }()
	}

	id, err := api.Ask(ctx, f.Message, f.Resume)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.errOut, "Invocation %s\n", id)
	if stream == nil {
		return nil
	}
	code, err := c.printOutput(ctx, stream, func(client.Output) bool { return true })
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("assistant exited with code %d", code)
	}
	return nil
}

// printOutput copies stdout and stderr lines accepted by match until both
// the end of stdout and the exit event were seen, and returns the exit code.
// The two arrive in either order.
func (c command) printOutput(ctx context.Context, stream *client.Stream, match func(client.Output) bool) (int, error) {
	code, exited, drained := 0, false, false
	for !exited || !drained {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, errors.New("daemon closed the event stream")
			}
			return 0, err
		}
		o, err := ev.Output()
		if err != nil || !match(o) {
			continue
		}
		switch o.Type {
		case "stdout":
			_, _ = fmt.Fprintln(c.out, o.Data)
		case "stderr":
			_, _ = fmt.Fprintln(c.errOut, o.Data)
		case "done":
			drained = true
		case "exit":
			if !exited {
				code = -1
				if o.Code != nil {
					code = *o.Code
				}
			}
			exited = true
		}
	}
	return code, nil
}

// OAuthLogin starts a flow and prints the authorization URL. With Wait it
// blocks until the daemon reports completion or failure for the provider.
func (c command) OAuthLogin(ctx context.Context, f OAuthFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	provider := strings.ToLower(strings.TrimSpace(f.Provider))

	var stream *client.Stream
	if f.Wait {
		if f.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.Timeout)
			defer cancel()
		}
		if stream, err = api.Subscribe(ctx, "oauth-complete", "oauth-error"); err != nil {
			return err
		}
		defer func() { _ = stream.Close() }()
	}

	authURL, err := api.OAuthStart(ctx, provider)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Authorize in your browser:\n  %s\n", authURL)
	if stream == nil {
		return nil
	}

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("timed out waiting for %s authorization", provider)
			}
			return err
		}
		var p struct {
			Provider    string          `json:"provider"`
			Error       string          `json:"error"`
			AccountInfo json.RawMessage `json:"accountInfo"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Provider != provider {
			continue
		}
		if ev.Event == "oauth-error" {
			return fmt.Errorf("%s authorization failed: %s", provider, p.Error)
		}
		_, _ = fmt.Fprintf(c.out, "Connected to %s\n", provider)
		if len(p.AccountInfo) > 0 && string(p.AccountInfo) != "null" {
			c.printJSON(p.AccountInfo)
		}
		return nil
	}
}

func (c command) OAuthStatus(ctx context.Context, f OAuthFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	st, err := api.OAuthStatus(ctx)
	if err != nil {
		return err
	}
	c.printJSON(st)
	return nil
}

func (c command) OAuthToken(ctx context.Context, f OAuthFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	tok, err := api.OAuthToken(ctx, f.Provider)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, tok)
	return nil
}

func (c command) OAuthRevoke(ctx context.Context, f OAuthFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if err := api.OAuthRevoke(ctx, f.Provider); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Disconnected %s\n", f.Provider)
	return nil
}

func (c command) PortsList(ctx context.Context, f PortsFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	ps, err := api.Ports(ctx)
	if err != nil {
		return err
	}
	c.printJSON(ps)
	return nil
}

func (c command) PortsKill(ctx context.Context, f PortsFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	pids, err := api.KillPort(ctx, f.Port)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		_, _ = fmt.Fprintf(c.out, "Nothing is listening on port %d\n", f.Port)
		return nil
	}
	_, _ = fmt.Fprintf(c.out, "Killed %v on port %d\n", pids, f.Port)
	return nil
}

func (c command) Activity(ctx context.Context, f ActivityFlags) error {
	ctx = orBackground(ctx)
	api, err := c.connect(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	evs, err := api.Activity(ctx, client.ActivityQuery{
		Project:  f.Project,
		Category: f.Category,
		Before:   f.Before,
		Limit:    f.Limit,
	})
	if err != nil {
		return err
	}
	c.printJSON(evs)
	return nil
}

func (c command) printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(c.out, string(b))
}

// parseEnv turns KEY=VALUE pairs into a map; later keys win.
func parseEnv(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		out[k] = v
	}
	return out, nil
}

func parsePort(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 || n > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be 1-65535", s)
	}
	return uint32(n), nil
}

// orBackground tolerates commands executed without a context.
func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// waitReachable polls the daemon until it answers or timeout passes.
func waitReachable(ctx context.Context, api *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if api.IsReachable(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return false
}
