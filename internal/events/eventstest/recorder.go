// Package eventstest provides an in-memory Emitter for tests.
package eventstest

import (
	"sync"
	"time"

	"github.com/drixzor/drode/internal/events"
)

// Recorder captures every emitted event.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Emit(topic string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, events.Event{Topic: topic, Payload: payload, At: time.Now()})
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Topic returns the recorded events for one topic.
func (r *Recorder) Topic(topic string) []events.Event {
	var out []events.Event
	for _, e := range r.Events() {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// Outputs returns the process output payloads recorded for topic and session.
func (r *Recorder) Outputs(topic, session string) []events.ProcessOutput {
	var out []events.ProcessOutput
	for _, e := range r.Topic(topic) {
		if po, ok := e.Payload.(events.ProcessOutput); ok && po.SessionID == session {
			out = append(out, po)
		}
	}
	return out
}

// WaitFor blocks until cond holds over the recorded events or timeout elapses.
func (r *Recorder) WaitFor(timeout time.Duration, cond func([]events.Event) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(r.Events()) {
			return true
		}
		select {
		case <-r.notify:
		case <-time.After(20 * time.Millisecond):
		case <-deadline.C:
			return cond(r.Events())
		}
	}
}
