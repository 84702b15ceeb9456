// Package assistant runs the external AI assistant CLI, one process per
// request, in the currently selected project.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/drixzor/drode/internal/activity"
	"github.com/drixzor/drode/internal/metrics"
	"github.com/drixzor/drode/internal/process"
	"github.com/drixzor/drode/internal/store"
)

// DefaultBinary is the assistant executable looked up on PATH.
const DefaultBinary = "claude"

// sessionPrefix namespaces invocation ids inside the shared process registry.
const sessionPrefix = "assistant-"

// ErrNoProject is returned by Send before a working directory is configured.
var ErrNoProject = errors.New("No project path set")

// BaseEnv disables colour in the assistant's output.
var BaseEnv = map[string]string{
	"FORCE_COLOR": "0",
	"NO_COLOR":    "1",
}

// Engine is the subset of process.Engine the invoker needs.
type Engine interface {
	Start(spec process.Spec) (int, error)
	Kill(session string) error
	Running(session string) bool
}

// ActivityLogger receives a best-effort record of each invocation.
type ActivityLogger interface {
	Log(project, category, eventType, title string, detail any)
}

type Config struct {
	Binary   string
	Settings store.Settings
	Projects store.Projects
	Activity ActivityLogger
	Logger   *slog.Logger
}

// Invoker builds assistant command lines and spawns them through the engine.
type Invoker struct {
	engine   Engine
	binary   string
	settings store.Settings
	projects store.Projects
	activity ActivityLogger
	logger   *slog.Logger
	newID    func() string

	mu     sync.Mutex
	active map[string]struct{}
}

func New(engine Engine, cfg Config) *Invoker {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Invoker{
		engine:   engine,
		binary:   cfg.Binary,
		settings: cfg.Settings,
		projects: cfg.Projects,
		activity: cfg.Activity,
		logger:   cfg.Logger.With("component", "assistant"),
		newID:    uuid.NewString,
		active:   make(map[string]struct{}),
	}
}

// BuildArgs returns the assistant argv (without the program name).
func BuildArgs(message, resumeID string, unrestricted bool) []string {
	args := make([]string, 0, 8)
	if unrestricted {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "--print", "--output-format", "stream-json", "--verbose")
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	return append(args, message)
}

// Configure selects the working directory for later invocations and moves
// it to the front of the recent project list.
func (a *Invoker) Configure(ctx context.Context, projectPath string) error {
	fi, err := os.Stat(projectPath)
	if err != nil {
		return fmt.Errorf("project path: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("project path %q is not a directory", projectPath)
	}
	if err := a.settings.SetSetting(ctx, store.SettingCurrentProject, projectPath); err != nil {
		return err
	}
	if a.projects != nil {
		if _, err := a.projects.TouchRecentProject(ctx, projectPath); err != nil {
			return err
		}
	}
	a.logger.Info("project configured", "path", projectPath)
	return nil
}

// Project returns the configured working directory.
func (a *Invoker) Project(ctx context.Context) (string, error) {
	p, ok, err := a.settings.GetSetting(ctx, store.SettingCurrentProject)
	if err != nil {
		return "", err
	}
	if !ok || p == "" {
		return "", ErrNoProject
	}
	return p, nil
}

// Running reports whether a working directory is configured.
func (a *Invoker) Running(ctx context.Context) bool {
	_, err := a.Project(ctx)
	return err == nil
}

// Send spawns one assistant process for message. resumeID continues an
// earlier assistant conversation when non-empty. It returns the invocation id.
func (a *Invoker) Send(ctx context.Context, message, resumeID string) (string, error) {
	project, err := a.Project(ctx)
	if err != nil {
		return "", err
	}
	unrestricted, err := a.DangerousMode(ctx)
	if err != nil {
		return "", err
	}
	id := sessionPrefix + a.newID()
	pid, err := a.engine.Start(process.Spec{
		SessionID: id,
		Program:   a.binary,
		Args:      BuildArgs(message, resumeID, unrestricted),
		WorkDir:   project,
	})
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	a.active[id] = struct{}{}
	a.mu.Unlock()

	metrics.IncAssistantInvocation(resumeID != "")
	a.logger.Info("assistant invoked", "invocation", id, "pid", pid, "resume", resumeID != "", "unrestricted", unrestricted)
	if a.activity != nil {
		a.activity.Log(project, activity.CategoryAssistant, "invoke", "Sent message to assistant", map[string]any{
			"invocation": id,
			"resumed":    resumeID != "",
		})
	}
	return id, nil
}

// ActiveInvocations lists invocations whose process is still registered.
func (a *Invoker) ActiveInvocations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.active))
	for id := range a.active {
		if !a.engine.Running(id) {
			delete(a.active, id)
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stop kills every in-flight invocation and returns how many were signalled.
func (a *Invoker) Stop() int {
	a.mu.Lock()
	ids := make([]string, 0, len(a.active))
	for id := range a.active {
		ids = append(ids, id)
	}
	a.active = make(map[string]struct{})
	a.mu.Unlock()

	n := 0
	for _, id := range ids {
		if err := a.engine.Kill(id); err == nil {
			n++
		}
	}
	return n
}

// DangerousMode reads the persisted unrestricted-permissions flag. Missing
// or unparsable values mean off.
func (a *Invoker) DangerousMode(ctx context.Context) (bool, error) {
	v, ok, err := a.settings.GetSetting(ctx, store.SettingDangerousMode)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

func (a *Invoker) SetDangerousMode(ctx context.Context, on bool) error {
	return a.settings.SetSetting(ctx, store.SettingDangerousMode, strconv.FormatBool(on))
}
