package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/oauth"
	"github.com/drixzor/drode/internal/ports"
	"github.com/drixzor/drode/internal/process"
	"github.com/drixzor/drode/internal/store"
)

// Terminal runs shell commands for the UI.
type Terminal interface {
	Start(spec process.Spec) (int, error)
	Kill(session string) error
}

// Assistant drives the assistant CLI.
type Assistant interface {
	Configure(ctx context.Context, projectPath string) error
	Project(ctx context.Context) (string, error)
	Running(ctx context.Context) bool
	Send(ctx context.Context, message, resumeID string) (string, error)
	Stop() int
	ActiveInvocations() []string
	DangerousMode(ctx context.Context) (bool, error)
	SetDangerousMode(ctx context.Context, on bool) error
}

// OAuth starts authorization flows and exposes stored connections.
type OAuth interface {
	Start(provider string) (string, error)
	Status(ctx context.Context) ([]oauth.Status, error)
	AccessToken(ctx context.Context, provider string) (string, error)
	Revoke(ctx context.Context, provider string) error
}

// Activity is the activity feed.
type Activity interface {
	Record(ctx context.Context, ev store.ActivityEvent) (store.ActivityEvent, error)
	Log(project, category, eventType, title string, detail any)
	Query(ctx context.Context, q store.ActivityQuery) ([]store.ActivityEvent, error)
	Clear(ctx context.Context, project string) (int64, error)
}

// Ports inspects and frees listening ports.
type Ports interface {
	List(ctx context.Context) ([]ports.Port, error)
	Kill(ctx context.Context, port uint32) ([]int32, error)
}

// Store is the persistence used directly by handlers.
type Store interface {
	store.Settings
	store.Projects
	store.Conversations
}

// Subscriber hands out event subscriptions for the websocket stream.
type Subscriber interface {
	Subscribe(buffer int, topics ...string) *events.Subscription
}

// Deps are the components served by the router. Nil components leave
// their routes unregistered.
type Deps struct {
	Terminal  Terminal
	Assistant Assistant
	OAuth     OAuth
	Store     Store
	Activity  Activity
	Ports     Ports
	Events    Subscriber
	// Auth guards every route under basePath, /events included. Nil leaves
	// the API open.
	Auth gin.HandlerFunc
	// Metrics is mounted at /metrics, outside basePath.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Router provides the HTTP API of the daemon under basePath. Every API
// response is an Envelope. /events upgrades to a websocket carrying the
// event stream. Routes under basePath reject foreign browser origins and
// non-JSON request bodies.
type Router struct {
	deps     Deps
	basePath string
	logger   *slog.Logger
}

// NewRouter constructs a Router. basePath may be empty or start with '/'.
func NewRouter(deps Deps, basePath string) *Router {
	lg := deps.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Router{deps: deps, basePath: sanitizeBase(basePath), logger: lg.With("component", "server")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.deps.Metrics != nil {
		g.GET("/metrics", gin.WrapH(r.deps.Metrics))
	}
	g.GET("/healthz", func(c *gin.Context) { ok(c, "ok") })

	group := g.Group(r.basePath)
	group.Use(requireLocalOrigin())
	if r.deps.Auth != nil {
		group.Use(r.deps.Auth)
	}
	group.Use(requireJSONBody())
	if r.deps.Events != nil {
		group.GET("/events", r.handleEvents)
	}
	if r.deps.Terminal != nil {
		group.POST("/terminal/run", r.handleTerminalRun)
		group.POST("/terminal/kill", r.handleTerminalKill)
	}
	if r.deps.Assistant != nil {
		group.POST("/assistant/configure", r.handleAssistantConfigure)
		group.POST("/assistant/send", r.handleAssistantSend)
		group.POST("/assistant/stop", r.handleAssistantStop)
		group.GET("/assistant/running", r.handleAssistantRunning)
		group.GET("/assistant/dangerous-mode", r.handleGetDangerousMode)
		group.PUT("/assistant/dangerous-mode", r.handleSetDangerousMode)
	}
	if r.deps.OAuth != nil {
		group.GET("/oauth/status", r.handleOAuthStatus)
		group.POST("/oauth/:provider/start", r.handleOAuthStart)
		group.GET("/oauth/:provider/token", r.handleOAuthToken)
		group.DELETE("/oauth/:provider", r.handleOAuthRevoke)
	}
	if r.deps.Store != nil {
		group.GET("/projects/current", r.handleCurrentProject)
		group.GET("/projects/recent", r.handleRecentProjects)
		group.DELETE("/projects/recent", r.handleRemoveRecentProject)

		group.GET("/conversations", r.handleListConversations)
		group.POST("/conversations", r.handleCreateConversation)
		group.GET("/conversations/:id", r.handleGetConversation)
		group.PATCH("/conversations/:id", r.handleRenameConversation)
		group.DELETE("/conversations/:id", r.handleDeleteConversation)
		group.PUT("/conversations/:id/messages", r.handleSaveMessages)
		group.GET("/active-conversation", r.handleActiveConversation)
		group.PUT("/active-conversation", r.handleSetActiveConversation)
		group.GET("/search", r.handleSearch)
	}
	if r.deps.Activity != nil {
		group.GET("/activity", r.handleActivityQuery)
		group.POST("/activity", r.handleActivityRecord)
		group.DELETE("/activity", r.handleActivityClear)
	}
	if r.deps.Ports != nil {
		group.GET("/ports", r.handlePortsList)
		group.POST("/ports/:port/kill", r.handlePortsKill)
	}
	return g
}

// NewServer returns an http.Server for h. WriteTimeout is left unset so the
// event stream can stay open.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// currentProject returns the configured project or "" when none is set.
func (r *Router) currentProject(ctx context.Context) string {
	if r.deps.Store == nil {
		return ""
	}
	p, _, err := r.deps.Store.GetSetting(ctx, store.SettingCurrentProject)
	if err != nil {
		return ""
	}
	return p
}

func (r *Router) logActivity(project, category, eventType, title string, detail any) {
	if r.deps.Activity != nil {
		r.deps.Activity.Log(project, category, eventType, title, detail)
	}
}
