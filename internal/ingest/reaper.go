package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Reaper periodically fails jobs stuck in processing past a deadline, usually
// because a worker died mid-run. The broker's redelivery then finds them
// terminal and skips, so the document stays visibly failed instead of
// processing forever.
type Reaper struct {
	jobs      JobStore
	maxAge    time.Duration
	scheduler *gocron.Scheduler
	log       *slog.Logger
}

func NewReaper(jobs JobStore, interval, maxAge time.Duration, log *slog.Logger) *Reaper {
	r := &Reaper{
		jobs:      jobs,
		maxAge:    maxAge,
		scheduler: gocron.NewScheduler(time.UTC),
		log:       log,
	}
	r.scheduler.Every(interval).Do(r.sweep)
	return r
}

// Start runs the scheduler in the background.
func (r *Reaper) Start() { r.scheduler.StartAsync() }

func (r *Reaper) Stop() { r.scheduler.Stop() }

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := r.jobs.ReapStale(ctx, r.maxAge)
	if err != nil {
		r.log.Error("stale job sweep failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Warn("reaped stale processing jobs", "count", n, "max_age", r.maxAge.String())
	}
}
