// Package app assembles the daemon from its configuration: one store, one
// event bus, one process registry shared by the terminal and assistant
// engines, and the HTTP API serving them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drixzor/drode/internal/activity"
	"github.com/drixzor/drode/internal/assistant"
	"github.com/drixzor/drode/internal/auth"
	"github.com/drixzor/drode/internal/config"
	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/logger"
	"github.com/drixzor/drode/internal/metrics"
	"github.com/drixzor/drode/internal/oauth"
	"github.com/drixzor/drode/internal/ports"
	"github.com/drixzor/drode/internal/process"
	"github.com/drixzor/drode/internal/registry"
	"github.com/drixzor/drode/internal/server"
	"github.com/drixzor/drode/internal/store"
	"github.com/drixzor/drode/internal/store/factory"
)

const shutdownTimeout = 5 * time.Second

// Options overrides pieces of the environment, mainly for tests.
type Options struct {
	// Console receives log output; defaults to os.Stderr.
	Console io.Writer
	// Registerer receives the metrics; defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Opener replaces the system browser for OAuth flows.
	Opener oauth.Opener
}

// App holds every long-lived component of the daemon.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Auth      *auth.Service
	Store     store.Store
	Bus       *events.Bus
	Registry  *registry.Registry
	Terminal  *process.Engine
	Assistant *assistant.Invoker
	Activity  *activity.Recorder
	Purger    *activity.Purger
	OAuth     *oauth.Manager
	Ports     *ports.Inspector
	Router    *server.Router

	assistantEngine *process.Engine
	logCloser       io.Closer
}

// New opens the store, applies the schema and constructs every component.
// Nothing is started; call Serve. On error all partially opened resources
// are released.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	lg, logCloser, err := logger.New(cfg.Log, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &App{Config: cfg, Logger: lg, logCloser: logCloser}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	st, err := factory.NewFromDSN(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("store schema: %w", err)
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(reg); err != nil {
		lg.Warn("metrics registration failed", "error", err)
	}

	if a.Auth, err = auth.New(); err != nil {
		return nil, err
	}
	a.Bus = events.NewBus(lg)
	a.Registry = registry.New()
	a.Activity = activity.NewRecorder(st, a.Bus, lg)
	a.Purger, err = activity.NewPurger(st, cfg.Activity.Retention, cfg.Activity.PurgeSchedule, lg)
	if err != nil {
		return nil, err
	}

	a.Terminal = process.NewEngine(a.Registry, a.Bus, process.Options{
		Topic:       events.TopicTerminal,
		TagSession:  true,
		BaseEnv:     process.TerminalEnv,
		GracePeriod: cfg.Process.GracePeriod,
		Transcripts: cfg.Transcripts(),
		Logger:      lg,
	})
	a.assistantEngine = process.NewEngine(a.Registry, a.Bus, process.Options{
		Topic:       events.TopicAssistant,
		BaseEnv:     assistant.BaseEnv,
		GracePeriod: cfg.Process.GracePeriod,
		Transcripts: cfg.Transcripts(),
		Logger:      lg,
	})
	a.Assistant = assistant.New(a.assistantEngine, assistant.Config{
		Binary:   cfg.Assistant.Binary,
		Settings: st,
		Projects: st,
		Activity: a.Activity,
		Logger:   lg,
	})

	a.OAuth = oauth.New(oauth.Config{
		CallbackAddr: cfg.OAuth.CallbackAddr,
		RedirectURI:  cfg.OAuth.RedirectURI,
		Timeout:      cfg.OAuth.Timeout,
		Tokens:       st,
		Emitter:      a.Bus,
		Opener:       opts.Opener,
		Logger:       lg,
	})
	a.Ports = ports.New(cfg.Ports.GracePeriod, lg)

	a.Router = server.NewRouter(server.Deps{
		Terminal:  a.Terminal,
		Assistant: a.Assistant,
		OAuth:     a.OAuth,
		Store:     st,
		Activity:  a.Activity,
		Ports:     a.Ports,
		Events:    a.Bus,
		Auth:      auth.NewMiddleware(a.Auth).GinAuth(),
		Metrics:   metrics.Handler(),
		Logger:    lg,
	}, cfg.Server.BasePath)
	return a, nil
}

// Handler is the HTTP API of the daemon.
func (a *App) Handler() http.Handler { return a.Router.Handler() }

// Serve listens on the configured address and blocks until ctx is done or
// the server fails. Running processes are killed before it returns.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.Server.Listen, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener is Serve on an already bound listener. The API token is
// published to the configured token file for the lifetime of the server.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	if err := a.Auth.WriteTokenFile(a.Config.Server.TokenFile); err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = os.Remove(a.Config.Server.TokenFile) }()

	srv := server.NewServer(ln.Addr().String(), a.Handler())
	a.Purger.Start()
	defer a.Purger.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.Logger.Info("drode daemon listening", "addr", ln.Addr().String(), "base_path", a.Config.Server.BasePath,
		"token_file", a.Config.Server.TokenFile)

	select {
	case err := <-errCh:
		a.KillAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	a.KillAll()
	// websocket subscribers hold their connections until the bus closes
	a.Bus.Close()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}

// KillAll terminates every terminal and assistant process. Assistant
// invocations go first so their exit events land on the assistant topic.
func (a *App) KillAll() {
	if a.Assistant != nil {
		a.Assistant.Stop()
	}
	if a.Terminal != nil {
		a.Terminal.KillAll()
	}
}

// Close releases the store and the log file. It is safe to call after a
// failed New.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
