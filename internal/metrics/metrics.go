package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drode"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful spawns per output topic.",
		}, []string{"topic"},
	)
	processSpawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "spawn_failures_total",
			Help:      "Number of spawns that failed synchronously.",
		}, []string{"topic"},
	)
	processKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "Number of explicit two-phase kills.",
		}, []string{"topic"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Observed process exits by outcome (ok, error, unknown).",
		}, []string{"topic", "outcome"},
	)
	processRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "running",
			Help:      "Processes spawned and not yet reaped.",
		}, []string{"topic"},
	)

	assistantInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "invocations_total",
			Help:      "Assistant CLI invocations, split by whether a session was resumed.",
		}, []string{"resumed"},
	)

	oauthFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "flows_total",
			Help:      "OAuth flow transitions per provider (started, completed, failed).",
		}, []string{"provider", "outcome"},
	)
	oauthPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "pending_flows",
			Help:      "Authorization requests awaiting their redirect.",
		},
	)

	activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "events_total",
			Help:      "Activity events recorded per category.",
		}, []string{"category"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		processStarts, processSpawnFailures, processKills, processExits, processRunning,
		assistantInvocations, oauthFlows, oauthPending, activityEvents,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func IncProcessStart(topic string) {
	if regOK.Load() {
		processStarts.WithLabelValues(topic).Inc()
		processRunning.WithLabelValues(topic).Inc()
	}
}

func IncSpawnFailure(topic string) {
	if regOK.Load() {
		processSpawnFailures.WithLabelValues(topic).Inc()
	}
}

func IncProcessKill(topic string) {
	if regOK.Load() {
		processKills.WithLabelValues(topic).Inc()
	}
}

// ObserveProcessExit records one reaped process. code -1 means unknown.
func ObserveProcessExit(topic string, code int) {
	if !regOK.Load() {
		return
	}
	outcome := "ok"
	switch {
	case code < 0:
		outcome = "unknown"
	case code > 0:
		outcome = "error"
	}
	processExits.WithLabelValues(topic, outcome).Inc()
	processRunning.WithLabelValues(topic).Dec()
}

func IncAssistantInvocation(resumed bool) {
	if regOK.Load() {
		assistantInvocations.WithLabelValues(strconv.FormatBool(resumed)).Inc()
	}
}

func IncOAuthFlow(provider, outcome string) {
	if regOK.Load() {
		oauthFlows.WithLabelValues(provider, outcome).Inc()
	}
}

func SetOAuthPending(n int) {
	if regOK.Load() {
		oauthPending.Set(float64(n))
	}
}

func IncActivityEvent(category string) {
	if regOK.Load() {
		activityEvents.WithLabelValues(category).Inc()
	}
}
