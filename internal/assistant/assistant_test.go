package assistant

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/drixzor/drode/internal/process"
	"github.com/drixzor/drode/internal/store"
	"github.com/drixzor/drode/internal/store/sqlite"
)

type fakeEngine struct {
	mu      sync.Mutex
	started []process.Spec
	killed  []string
	running map[string]bool
	err     error
}

func (f *fakeEngine) Start(spec process.Spec) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.started = append(f.started, spec)
	if f.running == nil {
		f.running = map[string]bool{}
	}
	f.running[spec.SessionID] = true
	return 1000 + len(f.started), nil
}

func (f *fakeEngine) Kill(session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[session] {
		return process.ErrProcessNotFound
	}
	delete(f.running, session)
	f.killed = append(f.killed, session)
	return nil
}

func (f *fakeEngine) Running(session string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[session]
}

type logged struct{ project, category, eventType string }

type fakeActivity struct {
	mu  sync.Mutex
	got []logged
}

func (f *fakeActivity) Log(project, category, eventType, _ string, _ any) {
	f.mu.Lock()
	f.got = append(f.got, logged{project, category, eventType})
	f.mu.Unlock()
}

func newInvoker(t *testing.T, eng Engine) (*Invoker, *sqlite.DB, *fakeActivity) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	act := &fakeActivity{}
	inv := New(eng, Config{Settings: db, Projects: db, Activity: act})
	n := 0
	inv.newID = func() string { n++; return string(rune('a' + n - 1)) }
	return inv, db, act
}

func TestBuildArgs(t *testing.T) {
	cases := []struct {
		message, resume string
		dangerous       bool
		want            []string
	}{
		{"hello", "", false, []string{"--print", "--output-format", "stream-json", "--verbose", "hello"}},
		{"again", "abc", true, []string{"--dangerously-skip-permissions", "--print", "--output-format", "stream-json", "--verbose", "--resume", "abc", "again"}},
	}
	for _, tc := range cases {
		if got := BuildArgs(tc.message, tc.resume, tc.dangerous); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("BuildArgs(%q, %q, %v) = %v, want %v", tc.message, tc.resume, tc.dangerous, got, tc.want)
		}
	}
}

func TestSendRequiresProject(t *testing.T) {
	eng := &fakeEngine{}
	inv, _, _ := newInvoker(t, eng)

	_, err := inv.Send(context.Background(), "hi", "")
	if !errors.Is(err, ErrNoProject) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "No project path set" {
		t.Fatalf("message %q", err)
	}
	if len(eng.started) != 0 {
		t.Fatalf("started %v", eng.started)
	}
	if inv.Running(context.Background()) {
		t.Fatal("running without a project")
	}
}

func TestSendBuildsInvocation(t *testing.T) {
	eng := &fakeEngine{}
	inv, db, act := newInvoker(t, eng)
	ctx := context.Background()
	dir := t.TempDir()

	if err := inv.Configure(ctx, dir); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !inv.Running(ctx) {
		t.Fatal("not running after configure")
	}
	recent, err := db.RecentProjects(ctx)
	if err != nil || !reflect.DeepEqual(recent, []string{dir}) {
		t.Fatalf("recent = %v, %v", recent, err)
	}

	id, err := inv.Send(ctx, "explain main.go", "")
	if err != nil || id != "assistant-a" {
		t.Fatalf("send = %q, %v", id, err)
	}

	if err := inv.SetDangerousMode(ctx, true); err != nil {
		t.Fatalf("dangerous mode: %v", err)
	}
	if _, err := inv.Send(ctx, "go on", "sess-1"); err != nil {
		t.Fatalf("send resume: %v", err)
	}

	if len(eng.started) != 2 {
		t.Fatalf("started %d processes", len(eng.started))
	}
	first, second := eng.started[0], eng.started[1]
	if first.Program != DefaultBinary || first.WorkDir != dir {
		t.Fatalf("first spec %+v", first)
	}
	if !reflect.DeepEqual(first.Args, BuildArgs("explain main.go", "", false)) {
		t.Fatalf("first args %v", first.Args)
	}
	if !reflect.DeepEqual(second.Args, BuildArgs("go on", "sess-1", true)) {
		t.Fatalf("second args %v", second.Args)
	}

	act.mu.Lock()
	defer act.mu.Unlock()
	if len(act.got) != 2 || act.got[0] != (logged{dir, "assistant", "invoke"}) {
		t.Fatalf("activity %+v", act.got)
	}
}

func TestConfigureRejectsMissingDir(t *testing.T) {
	inv, _, _ := newInvoker(t, &fakeEngine{})
	if err := inv.Configure(context.Background(), "/definitely/not/here"); err == nil {
		t.Fatal("missing dir accepted")
	}
	if inv.Running(context.Background()) {
		t.Fatal("running after failed configure")
	}
}

func TestDangerousModeDefaultsOff(t *testing.T) {
	inv, db, _ := newInvoker(t, &fakeEngine{})
	ctx := context.Background()

	if on, err := inv.DangerousMode(ctx); err != nil || on {
		t.Fatalf("default = %v, %v", on, err)
	}

	if err := db.SetSetting(ctx, store.SettingDangerousMode, "garbage"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if on, err := inv.DangerousMode(ctx); err != nil || on {
		t.Fatalf("garbage = %v, %v", on, err)
	}

	if err := inv.SetDangerousMode(ctx, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if v, _, _ := db.GetSetting(ctx, store.SettingDangerousMode); v != "true" {
		t.Fatalf("stored %q", v)
	}
}

func TestStopAndActiveInvocations(t *testing.T) {
	eng := &fakeEngine{}
	inv, _, _ := newInvoker(t, eng)
	ctx := context.Background()
	if err := inv.Configure(ctx, t.TempDir()); err != nil {
		t.Fatalf("configure: %v", err)
	}

	a, _ := inv.Send(ctx, "one", "")
	b, _ := inv.Send(ctx, "two", "")
	if got := inv.ActiveInvocations(); !reflect.DeepEqual(got, []string{a, b}) {
		t.Fatalf("active = %v", got)
	}

	// b exits on its own
	if err := eng.Kill(b); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if got := inv.ActiveInvocations(); !reflect.DeepEqual(got, []string{a}) {
		t.Fatalf("active = %v", got)
	}

	if n := inv.Stop(); n != 1 {
		t.Fatalf("stopped %d", n)
	}
	if got := inv.ActiveInvocations(); len(got) != 0 {
		t.Fatalf("active after stop = %v", got)
	}
	if !reflect.DeepEqual(eng.killed, []string{b, a}) {
		t.Fatalf("killed = %v", eng.killed)
	}
}

func TestSendSpawnFailure(t *testing.T) {
	eng := &fakeEngine{err: &process.SpawnError{SessionID: "x", Err: errors.New("exec: not found")}}
	inv, _, _ := newInvoker(t, eng)
	ctx := context.Background()
	if err := inv.Configure(ctx, t.TempDir()); err != nil {
		t.Fatalf("configure: %v", err)
	}

	_, err := inv.Send(ctx, "hi", "")
	var se *process.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
	if got := inv.ActiveInvocations(); len(got) != 0 {
		t.Fatalf("active = %v", got)
	}
}
