package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/drixzor/drode/internal/env"
	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/logger"
	"github.com/drixzor/drode/internal/metrics"
	"github.com/drixzor/drode/internal/registry"
)

// DefaultGracePeriod is the pause between graceful and forceful termination.
const DefaultGracePeriod = 100 * time.Millisecond

// TerminalEnv makes interactive tools emit colour for the UI terminal.
var TerminalEnv = map[string]string{
	"FORCE_COLOR": "1",
	"TERM":        "xterm-256color",
}

// Options configures an Engine.
type Options struct {
	// Topic is the event topic output is published on.
	Topic string
	// TagSession adds the session id to every output payload.
	TagSession bool
	// BaseEnv is applied on top of the OS environment, before Spec.Env.
	BaseEnv map[string]string
	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration
	// Transcripts optionally captures every line to rotating files.
	Transcripts logger.Transcripts
	Signaler    Signaler
	Logger      *slog.Logger
}

// Engine spawns external processes, streams their output line by line as
// events, reports their exit, and terminates them on request.
// Several engines may share one registry; session ids must then be unique
// across them.
type Engine struct {
	reg    *registry.Registry
	emit   events.Emitter
	sig    Signaler
	opts   Options
	logger *slog.Logger
	sleep  func(time.Duration)
}

func NewEngine(reg *registry.Registry, emit events.Emitter, opts Options) *Engine {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Topic == "" {
		opts.Topic = events.TopicTerminal
	}
	sig := opts.Signaler
	if sig == nil {
		sig = DefaultSignaler()
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	if emit == nil {
		emit = events.Discard
	}
	return &Engine{
		reg:    reg,
		emit:   emit,
		sig:    sig,
		opts:   opts,
		logger: lg.With("component", "process", "topic", opts.Topic),
		sleep:  time.Sleep,
	}
}

// Start spawns spec and returns the OS pid. Spawn failures are returned
// synchronously as *SpawnError and leave the registry untouched. On
// success the session is registered and output, done and exit events
// follow asynchronously.
func (e *Engine) Start(spec Spec) (int, error) {
	if strings.TrimSpace(spec.SessionID) == "" {
		return 0, ErrSessionRequired
	}
	cmd, err := spec.buildCommand()
	if err != nil {
		return 0, err
	}
	var dirEnv map[string]string
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
		dirEnv = map[string]string{"PWD": spec.WorkDir}
	}
	cmd.Env = env.FromOS().With(dirEnv, e.opts.BaseEnv, spec.Env).List()
	configureSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, e.spawnFailed(spec.SessionID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return 0, e.spawnFailed(spec.SessionID, err)
	}
	if err := cmd.Start(); err != nil {
		return 0, e.spawnFailed(spec.SessionID, err)
	}

	pid := cmd.Process.Pid
	e.reg.Put(spec.SessionID, pid)
	metrics.IncProcessStart(e.opts.Topic)
	e.logger.Info("process started", "session", spec.SessionID, "pid", pid)

	outW, errW, err := e.opts.Transcripts.Writers(spec.SessionID)
	if err != nil {
		e.logger.Warn("transcripts unavailable", "session", spec.SessionID, "error", err)
	}
	go e.readLines(spec.SessionID, events.KindStdout, stdout, outW)
	go e.readLines(spec.SessionID, events.KindStderr, stderr, errW)
	go e.wait(spec.SessionID, cmd.Process)
	return pid, nil
}

func (e *Engine) spawnFailed(session string, err error) error {
	metrics.IncSpawnFailure(e.opts.Topic)
	e.logger.Warn("spawn failed", "session", session, "error", err)
	return &SpawnError{SessionID: session, Err: err}
}

// Kill removes session from the registry and terminates its process group:
// graceful signal, grace period, then forceful signal regardless of whether
// the group already exited. A synthetic exit event with code -1 is emitted
// right away; the waiter emits the real one when the process is reaped.
func (e *Engine) Kill(session string) error {
	pid, ok := e.reg.Take(session)
	if !ok {
		return ErrProcessNotFound
	}
	if err := e.sig.SignalGroup(pid, SignalTerminate); err != nil {
		e.logger.Debug("graceful signal failed", "session", session, "pid", pid, "error", err)
	}
	e.sleep(e.opts.GracePeriod)
	if err := e.sig.SignalGroup(pid, SignalKill); err != nil {
		e.logger.Debug("forceful signal failed", "session", session, "pid", pid, "error", err)
	}
	metrics.IncProcessKill(e.opts.Topic)
	e.logger.Info("process killed", "session", session, "pid", pid)
	e.emitExit(session, -1)
	return nil
}

// Running reports whether session is registered.
func (e *Engine) Running(session string) bool {
	_, ok := e.reg.Get(session)
	return ok
}

// KillAll kills every session registered by any engine sharing the registry.
func (e *Engine) KillAll() {
	for _, s := range e.reg.Sessions() {
		_ = e.Kill(s)
	}
}

// readLines forwards one event per line until EOF or a read error. The
// stdout reader signals completion with a done event.
func (e *Engine) readLines(session, kind string, r io.ReadCloser, transcript io.WriteCloser) {
	defer func() { _ = r.Close() }()
	if transcript != nil {
		defer func() { _ = transcript.Close() }()
	}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			text := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			text = strings.ToValidUTF8(text, "�")
			if transcript != nil {
				_, _ = io.WriteString(transcript, text+"\n")
			}
			e.emitOutput(events.ProcessOutput{SessionID: session, Type: kind, Data: text})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				e.logger.Debug("stream ended", "session", session, "stream", kind, "error", err)
			}
			break
		}
	}
	if kind == events.KindStdout {
		e.emitOutput(events.ProcessOutput{SessionID: session, Type: events.KindDone})
	}
}

// wait reaps the process through its OS handle, leaving the pipes to the
// readers so that trailing output is never cut off.
func (e *Engine) wait(session string, p *os.Process) {
	code := -1
	state, err := p.Wait()
	if err == nil && state != nil {
		code = state.ExitCode()
	}
	e.reg.RemoveIf(session, p.Pid)
	metrics.ObserveProcessExit(e.opts.Topic, code)
	e.logger.Info("process exited", "session", session, "pid", p.Pid, "code", code)
	e.emitExit(session, code)
}

func (e *Engine) emitExit(session string, code int) {
	e.emitOutput(events.ProcessOutput{SessionID: session, Type: events.KindExit, Code: &code})
}

func (e *Engine) emitOutput(out events.ProcessOutput) {
	if !e.opts.TagSession {
		out.SessionID = ""
	}
	e.emit.Emit(e.opts.Topic, out)
}
