package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drixzor/drode/internal/store"
)

// Purger deletes activity older than the retention window on a cron schedule.
type Purger struct {
	store     store.Activity
	retention time.Duration
	scheduler *cron.Cron
	entryID   cron.EntryID
	logger    *slog.Logger
	now       func() time.Time
}

// NewPurger validates schedule (standard cron with optional seconds, or
// descriptors such as "@daily" and "@every 1h"). retention <= 0 disables
// purging; Start is then a no-op.
func NewPurger(st store.Activity, retention time.Duration, schedule string, logger *slog.Logger) (*Purger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Purger{
		store:     st,
		retention: retention,
		logger:    logger.With("component", "activity-purge"),
		now:       time.Now,
	}
	if retention <= 0 {
		return p, nil
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	p.scheduler = cron.New(cron.WithParser(parser))
	id, err := p.scheduler.AddFunc(schedule, p.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	p.entryID = id
	return p, nil
}

func (p *Purger) Start() {
	if p.scheduler != nil {
		p.scheduler.Start()
	}
}

// Stop halts the schedule and waits for a running purge to finish.
func (p *Purger) Stop() {
	if p.scheduler != nil {
		<-p.scheduler.Stop().Done()
	}
}

// PurgeNow deletes everything older than the retention window.
func (p *Purger) PurgeNow(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention).UnixMilli()
	return p.store.PurgeActivityBefore(ctx, cutoff)
}

func (p *Purger) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := p.PurgeNow(ctx)
	if err != nil {
		p.logger.Warn("activity purge failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("activity purged", "deleted", n, "retention", p.retention)
	}
}
