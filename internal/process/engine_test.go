//go:build !windows

package process

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/events/eventstest"
	"github.com/drixzor/drode/internal/logger"
	"github.com/drixzor/drode/internal/registry"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *registry.Registry, *eventstest.Recorder) {
	t.Helper()
	reg := registry.New()
	rec := eventstest.NewRecorder()
	if opts.Topic == "" {
		opts.Topic = events.TopicTerminal
		opts.TagSession = true
	}
	return NewEngine(reg, rec, opts), reg, rec
}

func hasExit(rec *eventstest.Recorder, session string, n int) func([]events.Event) bool {
	return func([]events.Event) bool {
		c := 0
		for _, o := range rec.Outputs(events.TopicTerminal, session) {
			if o.Type == events.KindExit {
				c++
			}
		}
		return c >= n
	}
}

func hasDoneAndExit(rec *eventstest.Recorder, session string) func([]events.Event) bool {
	return func([]events.Event) bool {
		var done, exit bool
		for _, o := range rec.Outputs(events.TopicTerminal, session) {
			done = done || o.Type == events.KindDone
			exit = exit || o.Type == events.KindExit
		}
		return done && exit
	}
}

func linesOf(outs []events.ProcessOutput, kind string) []string {
	var lines []string
	for _, o := range outs {
		if o.Type == kind {
			lines = append(lines, o.Data)
		}
	}
	return lines
}

func TestStartEchoStreamsLineAndExit(t *testing.T) {
	e, reg, rec := newTestEngine(t, Options{})
	pid, err := e.Start(Spec{SessionID: "t1", Command: "echo hi", WorkDir: os.TempDir()})
	require.NoError(t, err)
	require.Positive(t, pid)

	require.True(t, rec.WaitFor(5*time.Second, hasDoneAndExit(rec, "t1")))
	outs := rec.Outputs(events.TopicTerminal, "t1")
	assert.Equal(t, []string{"hi"}, linesOf(outs, events.KindStdout))

	var exit events.ProcessOutput
	for _, o := range outs {
		if o.Type == events.KindExit {
			exit = o
		}
	}
	require.NotNil(t, exit.Code)
	assert.Equal(t, 0, *exit.Code)

	require.Eventually(t, func() bool { _, ok := reg.Get("t1"); return !ok }, time.Second, 10*time.Millisecond,
		"natural exit removes the session")
}

func TestStdoutOrderPreserved(t *testing.T) {
	e, _, rec := newTestEngine(t, Options{})
	_, err := e.Start(Spec{SessionID: "seq", Command: "i=1; while [ $i -le 200 ]; do echo $i; i=$((i+1)); done"})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasDoneAndExit(rec, "seq")))

	lines := linesOf(rec.Outputs(events.TopicTerminal, "seq"), events.KindStdout)
	require.Len(t, lines, 200)
	for i, l := range lines {
		assert.Equal(t, strconv.Itoa(i+1), l)
	}
}

func TestStderrAndPartialLines(t *testing.T) {
	e, _, rec := newTestEngine(t, Options{})
	_, err := e.Start(Spec{SessionID: "mix", Command: `printf 'a\r\n\nb'; echo oops 1>&2`})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasDoneAndExit(rec, "mix")))
	require.True(t, rec.WaitFor(time.Second, func([]events.Event) bool {
		return len(linesOf(rec.Outputs(events.TopicTerminal, "mix"), events.KindStderr)) == 1
	}))

	outs := rec.Outputs(events.TopicTerminal, "mix")
	assert.Equal(t, []string{"a", "", "b"}, linesOf(outs, events.KindStdout))
	assert.Equal(t, []string{"oops"}, linesOf(outs, events.KindStderr))
}

func TestBlankLinesKeepDataField(t *testing.T) {
	e, _, rec := newTestEngine(t, Options{})
	_, err := e.Start(Spec{SessionID: "blank", Command: `printf 'a\n\nb\n'`})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasDoneAndExit(rec, "blank")))

	var got []string
	for _, o := range rec.Outputs(events.TopicTerminal, "blank") {
		if o.Type != events.KindStdout {
			continue
		}
		b, err := json.Marshal(o)
		require.NoError(t, err)
		var wire map[string]any
		require.NoError(t, json.Unmarshal(b, &wire))
		data, present := wire["data"]
		require.True(t, present, "stdout event without data: %s", b)
		got = append(got, data.(string))
	}
	assert.Equal(t, []string{"a", "", "b"}, got)
}

func TestNonZeroExitCode(t *testing.T) {
	e, _, rec := newTestEngine(t, Options{})
	_, err := e.Start(Spec{SessionID: "x", Command: "exit 3"})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasExit(rec, "x", 1)))
	for _, o := range rec.Outputs(events.TopicTerminal, "x") {
		if o.Type == events.KindExit {
			assert.Equal(t, 3, *o.Code)
		}
	}
}

func TestEnvironmentLayers(t *testing.T) {
	e, _, rec := newTestEngine(t, Options{
		Topic:      events.TopicTerminal,
		TagSession: true,
		BaseEnv:    map[string]string{"FORCE_COLOR": "1", "TERM": "xterm-256color"},
	})
	_, err := e.Start(Spec{SessionID: "env", Command: `echo "$FORCE_COLOR $TERM $EXTRA"`, Env: map[string]string{"EXTRA": "yes", "TERM": "dumb"}})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasDoneAndExit(rec, "env")))
	assert.Equal(t, []string{"1 dumb yes"}, linesOf(rec.Outputs(events.TopicTerminal, "env"), events.KindStdout))
}

func TestSpawnErrors(t *testing.T) {
	e, reg, rec := newTestEngine(t, Options{})

	_, err := e.Start(Spec{SessionID: "bad-dir", Command: "echo hi", WorkDir: filepath.Join(t.TempDir(), "missing")})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad-dir", se.SessionID)

	_, err = e.Start(Spec{SessionID: "bad-bin", Program: "definitely-not-a-real-binary-drode"})
	require.ErrorAs(t, err, &se)

	_, err = e.Start(Spec{Command: "echo hi"})
	assert.ErrorIs(t, err, ErrSessionRequired)

	_, err = e.Start(Spec{SessionID: "empty", Command: "  "})
	assert.ErrorIs(t, err, ErrEmptyCommand)

	assert.Zero(t, reg.Len())
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.Events())
}

func TestKillTerminatesGroup(t *testing.T) {
	e, reg, rec := newTestEngine(t, Options{})
	pid, err := e.Start(Spec{SessionID: "long", Command: "sleep 30 & echo $!; wait"})
	require.NoError(t, err)

	require.True(t, rec.WaitFor(5*time.Second, func([]events.Event) bool {
		return len(linesOf(rec.Outputs(events.TopicTerminal, "long"), events.KindStdout)) == 1
	}))
	child, err := strconv.Atoi(linesOf(rec.Outputs(events.TopicTerminal, "long"), events.KindStdout)[0])
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, e.Kill("long"))
	_, ok := reg.Get("long")
	assert.False(t, ok)

	var exits []int
	for _, o := range rec.Outputs(events.TopicTerminal, "long") {
		if o.Type == events.KindExit {
			exits = append(exits, *o.Code)
		}
	}
	require.NotEmpty(t, exits, "Kill emits a synthetic exit before returning")
	assert.Equal(t, -1, exits[len(exits)-1])

	require.Eventually(t, func() bool { return gone(pid) && gone(child) }, 2*time.Second, 10*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)

	// the waiter reports too; consumers see a second exit
	require.True(t, rec.WaitFor(2*time.Second, hasExit(rec, "long", 2)))
}

func TestKillUnknownSession(t *testing.T) {
	e, reg, _ := newTestEngine(t, Options{})
	reg.Put("other", 12345)

	err := e.Kill("nope")
	assert.ErrorIs(t, err, ErrProcessNotFound)
	assert.Equal(t, "Process not found", err.Error())
	pid, ok := reg.Get("other")
	assert.True(t, ok)
	assert.Equal(t, 12345, pid)
}

func TestKillAfterNaturalExitIsNotFound(t *testing.T) {
	e, _, rec := newTestEngine(t, Options{})
	_, err := e.Start(Spec{SessionID: "quick", Command: "true"})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasExit(rec, "quick", 1)))
	assert.ErrorIs(t, e.Kill("quick"), ErrProcessNotFound)
}

func TestKillSignalSequence(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	sig := SignalerFunc(func(pid int, s Signal) error {
		mu.Lock()
		calls = append(calls, strconv.Itoa(pid)+":"+s.String())
		mu.Unlock()
		return errors.New("no such process")
	})
	e, reg, rec := newTestEngine(t, Options{Topic: events.TopicTerminal, TagSession: true, Signaler: sig, GracePeriod: 250 * time.Millisecond})
	var slept time.Duration
	e.sleep = func(d time.Duration) { slept = d }

	reg.Put("fake", 4242)
	require.NoError(t, e.Kill("fake"))

	assert.Equal(t, []string{"4242:terminate", "4242:kill"}, calls)
	assert.Equal(t, 250*time.Millisecond, slept)
	outs := rec.Outputs(events.TopicTerminal, "fake")
	require.Len(t, outs, 1)
	assert.Equal(t, -1, *outs[0].Code)
}

func TestReusedSessionKeepsNewerMapping(t *testing.T) {
	e, reg, rec := newTestEngine(t, Options{})
	_, err := e.Start(Spec{SessionID: "dup", Command: "true"})
	require.NoError(t, err)
	second, err := e.Start(Spec{SessionID: "dup", Command: "sleep 5"})
	require.NoError(t, err)

	require.True(t, rec.WaitFor(5*time.Second, hasExit(rec, "dup", 1)))
	pid, ok := reg.Get("dup")
	require.True(t, ok)
	assert.Equal(t, second, pid)
	require.NoError(t, e.Kill("dup"))
}

func TestUntaggedOutput(t *testing.T) {
	reg := registry.New()
	rec := eventstest.NewRecorder()
	e := NewEngine(reg, rec, Options{Topic: events.TopicAssistant})
	_, err := e.Start(Spec{SessionID: "assistant-1", Program: "/bin/sh", Args: []string{"-c", "echo ok"}})
	require.NoError(t, err)

	require.True(t, rec.WaitFor(5*time.Second, func(evs []events.Event) bool {
		for _, ev := range evs {
			if ev.Payload.(events.ProcessOutput).Type == events.KindDone {
				return true
			}
		}
		return false
	}))
	for _, ev := range rec.Topic(events.TopicAssistant) {
		assert.Empty(t, ev.Payload.(events.ProcessOutput).SessionID)
	}
	assert.Equal(t, []string{"ok"}, linesOf(rec.Outputs(events.TopicAssistant, ""), events.KindStdout))
}

func TestTranscripts(t *testing.T) {
	dir := t.TempDir()
	e, _, rec := newTestEngine(t, Options{Topic: events.TopicTerminal, TagSession: true, Transcripts: logger.Transcripts{Dir: dir}})
	_, err := e.Start(Spec{SessionID: "tr", Command: "echo saved; echo warn 1>&2"})
	require.NoError(t, err)
	require.True(t, rec.WaitFor(5*time.Second, hasDoneAndExit(rec, "tr")))

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(dir, "tr.stdout.log"))
		return err == nil && strings.Contains(string(b), "saved")
	}, 2*time.Second, 20*time.Millisecond)
}
