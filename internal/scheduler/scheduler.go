package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"timeline-archive/internal/queue"
)

// Scheduler owns the periodic re-entry into the pipeline: on every tick it
// enqueues a refresh_due_accounts job, which fans back out into sync_profiles
// for accounts whose data has gone stale.
type Scheduler struct {
	log      *slog.Logger
	cron     *cron.Cron
	enqueuer queue.Enqueuer
}

func New(log *slog.Logger, enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{
		log:      log,
		cron:     cron.New(),
		enqueuer: enqueuer,
	}
}

// Start registers the refresh trigger with the given cron spec (e.g.
// "*/15 * * * *") and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.enqueuer.Enqueue(ctx, queue.Job{Type: queue.JobRefreshDue}); err != nil {
			s.log.Warn("refresh_trigger_failed", "error", err)
			return
		}
		s.log.Info("refresh_trigger_enqueued")
	})
	if err != nil {
		return fmt.Errorf("schedule refresh trigger: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler_started", "spec", spec)
	return nil
}

// Stop halts the scheduler and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler_stopped")
}
