package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestHelpersNoopBeforeRegister(t *testing.T) {
	if regOK.Load() {
		t.Skip("already registered by another test")
	}
	IncProcessStart("terminal-output")
	if got := value(t, processStarts.WithLabelValues("terminal-output")); got != 0 {
		t.Fatalf("expected no-op before Register, got %v", got)
	}
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncProcessStart("terminal-output")
	IncProcessStart("terminal-output")
	IncSpawnFailure("terminal-output")
	IncProcessKill("terminal-output")
	ObserveProcessExit("terminal-output", 0)
	ObserveProcessExit("terminal-output", -1)
	IncAssistantInvocation(true)
	IncOAuthFlow("github", "started")
	SetOAuthPending(2)
	IncActivityEvent("terminal")

	if got := value(t, processRunning.WithLabelValues("terminal-output")); got != 0 {
		t.Fatalf("running gauge = %v, want 0", got)
	}
	if got := value(t, processExits.WithLabelValues("terminal-output", "unknown")); got != 1 {
		t.Fatalf("unknown exits = %v, want 1", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"drode_process_starts_total":         false,
		"drode_process_spawn_failures_total": false,
		"drode_process_kills_total":          false,
		"drode_process_exits_total":          false,
		"drode_process_running":              false,
		"drode_assistant_invocations_total":  false,
		"drode_oauth_flows_total":            false,
		"drode_oauth_pending_flows":          false,
		"drode_activity_events_total":        false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServes(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}
