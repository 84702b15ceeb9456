// Package activity records the per-project activity feed and keeps it
// within its retention window.
package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/drixzor/drode/internal/events"
	"github.com/drixzor/drode/internal/metrics"
	"github.com/drixzor/drode/internal/store"
)

// Categories used by the daemon itself. Clients may record others.
const (
	CategoryTerminal  = "terminal"
	CategoryAssistant = "assistant"
	CategoryOAuth     = "oauth"
	CategoryPorts     = "ports"
)

// Recorder persists activity events and publishes each stored event.
type Recorder struct {
	store   store.Activity
	emit    events.Emitter
	logger  *slog.Logger
	timeout time.Duration
}

func NewRecorder(st store.Activity, emit events.Emitter, logger *slog.Logger) *Recorder {
	if emit == nil {
		emit = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   st,
		emit:    emit,
		logger:  logger.With("component", "activity"),
		timeout: 5 * time.Second,
	}
}

// Record stores ev and emits it on the activity topic.
func (r *Recorder) Record(ctx context.Context, ev store.ActivityEvent) (store.ActivityEvent, error) {
	saved, err := r.store.InsertActivity(ctx, ev)
	if err != nil {
		return store.ActivityEvent{}, err
	}
	metrics.IncActivityEvent(saved.Category)
	r.emit.Emit(events.TopicActivity, saved)
	return saved, nil
}

// Log records an event in the background. Failures are only logged; the
// caller's operation never depends on the activity feed.
func (r *Recorder) Log(project, category, eventType, title string, detail any) {
	if r == nil || project == "" {
		return
	}
	ev := store.ActivityEvent{
		ProjectPath: project,
		Category:    category,
		EventType:   eventType,
		Title:       title,
	}
	if detail != nil {
		b, err := json.Marshal(detail)
		if err == nil {
			ev.Detail = b
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Record(ctx, ev); err != nil {
			r.logger.Warn("activity not recorded", "category", category, "type", eventType, "error", err)
		}
	}()
}

func (r *Recorder) Query(ctx context.Context, q store.ActivityQuery) ([]store.ActivityEvent, error) {
	return r.store.QueryActivity(ctx, q)
}

func (r *Recorder) Clear(ctx context.Context, project string) (int64, error) {
	return r.store.ClearActivity(ctx, project)
}
