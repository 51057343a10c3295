package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timeline-archive/internal/models"
	"timeline-archive/internal/queue"
)

// refreshBatchSize caps how many usernames one refresh pass feeds back into
// sync_profiles, and how many go into a single job.
const (
	refreshBatchSize = 100
	refreshMaxDue    = 1000
)

// Orchestrator is the explicit task chain. Every allowed stage transition
// lives here as exactly one enqueue, so a stage can never be skipped:
//
//	sync_profiles  -> pull_timeline (per flagged account)
//	pull_timeline  -> backfill_history
//	backfill_history, incomplete -> nothing (the periodic trigger re-enters)
//	backfill_history, complete   -> terminal until a profile delta reopens it
//	refresh_due_accounts -> sync_profiles (batched)
type Orchestrator struct {
	log        *slog.Logger
	profiles   *ProfileSync
	timeline   *TimelineSync
	backfill   *Backfill
	accounts   AccountStore
	enqueuer   queue.Enqueuer
	refreshAge time.Duration
}

func NewOrchestrator(
	log *slog.Logger,
	profiles *ProfileSync,
	timeline *TimelineSync,
	backfill *Backfill,
	accounts AccountStore,
	enqueuer queue.Enqueuer,
) *Orchestrator {
	return &Orchestrator{
		log:        log,
		profiles:   profiles,
		timeline:   timeline,
		backfill:   backfill,
		accounts:   accounts,
		enqueuer:   enqueuer,
		refreshAge: 24 * time.Hour,
	}
}

// Handle executes one job and enqueues its successors. A returned error means
// the queue should retry; terminal failures are logged and absorbed here.
func (o *Orchestrator) Handle(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobSyncProfiles:
		return o.handleSyncProfiles(ctx, job)
	case queue.JobPullTimeline:
		return o.handlePullTimeline(ctx, job)
	case queue.JobBackfillHistory:
		return o.handleBackfill(ctx, job)
	case queue.JobRefreshDue:
		return o.handleRefreshDue(ctx)
	default:
		o.log.Warn("unknown_job_type", "type", job.Type)
		return nil
	}
}

func (o *Orchestrator) handleSyncProfiles(ctx context.Context, job queue.Job) error {
	flagged, err := o.profiles.SyncProfiles(ctx, job.Usernames)
	if err != nil {
		if !Retryable(err) {
			// total resolution failure aborts the chain for this task
			o.log.Error("profile_sync_aborted", "usernames", len(job.Usernames), "error", err)
			return nil
		}
		return err
	}

	for _, f := range flagged {
		next := queue.Job{Type: queue.JobPullTimeline, AccountID: f.TwitterID}
		if err := o.enqueuer.Enqueue(ctx, next); err != nil {
			return fmt.Errorf("chain pull_timeline for %s: %w", f.Username, err)
		}
	}
	return nil
}

func (o *Orchestrator) handlePullTimeline(ctx context.Context, job queue.Job) error {
	if err := o.timeline.PullTimeline(ctx, job.AccountID); err != nil {
		return err
	}

	acc, err := o.accounts.ByTwitterID(ctx, job.AccountID)
	if err != nil {
		return fmt.Errorf("%w: resolve account %s for backfill: %v", ErrStorage, job.AccountID, err)
	}

	// chaining is unconditional: a timeline pull that found nothing new still
	// hands the account to backfill, which decides completeness itself
	next := queue.Job{Type: queue.JobBackfillHistory, Username: acc.Username}
	if err := o.enqueuer.Enqueue(ctx, next); err != nil {
		return fmt.Errorf("chain backfill_history for %s: %w", acc.Username, err)
	}
	return nil
}

func (o *Orchestrator) handleBackfill(ctx context.Context, job queue.Job) error {
	done, err := o.backfill.Run(ctx, job.Username)
	if err != nil {
		if !Retryable(err) {
			o.log.Error("backfill_aborted", "username", job.Username, "error", err)
			if stErr := o.accounts.AdvanceStatus(ctx, job.Username, models.StatusError); stErr != nil {
				o.log.Warn("status_error_mark_failed", "username", job.Username, "error", stErr)
			}
			return nil
		}
		return err
	}

	// incomplete runs are not self-re-enqueued; the periodic refresh trigger
	// re-enters the chain and the rebuilt checkpoint resumes the scan
	if !done {
		o.log.Info("backfill_incomplete", "username", job.Username)
	}
	return nil
}

func (o *Orchestrator) handleRefreshDue(ctx context.Context) error {
	due, err := o.accounts.DueForRefresh(ctx, o.refreshAge, refreshMaxDue)
	if err != nil {
		return fmt.Errorf("%w: list due accounts: %v", ErrStorage, err)
	}
	if len(due) == 0 {
		return nil
	}

	for start := 0; start < len(due); start += refreshBatchSize {
		end := start + refreshBatchSize
		if end > len(due) {
			end = len(due)
		}
		next := queue.Job{Type: queue.JobSyncProfiles, Usernames: due[start:end]}
		if err := o.enqueuer.Enqueue(ctx, next); err != nil {
			return fmt.Errorf("chain sync_profiles for refresh: %w", err)
		}
	}

	o.log.Info("refresh_fanned_out", "accounts", len(due))
	return nil
}
