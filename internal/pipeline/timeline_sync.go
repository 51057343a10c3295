package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"timeline-archive/internal/metrics"
	"timeline-archive/internal/models"
	"timeline-archive/internal/twitter"
)

// TimelineSync fetches the most recent page of an account's posts and persists
// only the ones not already stored. New data is detected by set difference
// against the stored id set, which is re-derived from storage on every run.
type TimelineSync struct {
	log      *slog.Logger
	accounts AccountStore
	posts    PostStore
	source   TimelineSource
	pageSize int
}

func NewTimelineSync(log *slog.Logger, accounts AccountStore, posts PostStore, source TimelineSource) *TimelineSync {
	return &TimelineSync{
		log:      log,
		accounts: accounts,
		posts:    posts,
		source:   source,
		pageSize: twitter.DefaultTimelinePageSize,
	}
}

// PullTimeline runs one incremental pull for accountID.
func (ts *TimelineSync) PullTimeline(ctx context.Context, accountID string) error {
	fetched, err := ts.source.UserTimeline(ctx, accountID, ts.pageSize)
	if err != nil {
		return fmt.Errorf("timeline fetch for %s: %w", accountID, err)
	}

	// stored state must never contain duplicates, even ones left behind by an
	// earlier buggy run; reconcile before diffing against it
	if _, err := ts.posts.ReconcileDuplicates(ctx, accountID); err != nil {
		return fmt.Errorf("%w: reconcile duplicates: %v", ErrStorage, err)
	}

	storedIDs, err := ts.posts.IDs(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: load stored ids: %v", ErrStorage, err)
	}

	var toInsert []models.PostRecord
	if len(storedIDs) == 0 {
		// fresh account: no point diffing against nothing
		ts.log.Info("fresh_partition", "account_id", accountID, "fetched", len(fetched))
		toInsert = records(accountID, fetched)
	} else {
		seen := make(map[string]bool, len(storedIDs))
		for _, id := range storedIDs {
			seen[id] = true
		}
		for _, p := range fetched {
			if !seen[p.ID] {
				toInsert = append(toInsert, record(accountID, p))
			}
		}
	}

	if len(toInsert) > 0 {
		n, err := ts.posts.BulkInsert(ctx, toInsert)
		if err != nil {
			return fmt.Errorf("%w: persist timeline page: %v", ErrStorage, err)
		}
		metrics.PostsInserted.Add(float64(n))
	}

	if err := ts.accounts.AdvanceStatusByTwitterID(ctx, accountID, models.StatusStarted); err != nil {
		ts.log.Warn("status_advance_failed", "account_id", accountID, "error", err)
	}

	ts.log.Info("timeline_sync_complete",
		"account_id", accountID,
		"fetched", len(fetched),
		"new", len(toInsert),
	)
	return nil
}

func record(accountID string, p twitter.Post) models.PostRecord {
	return models.PostRecord{
		AccountID: accountID,
		PostID:    p.ID,
		Payload:   p.Raw,
	}
}

func records(accountID string, posts []twitter.Post) []models.PostRecord {
	out := make([]models.PostRecord, 0, len(posts))
	for _, p := range posts {
		out = append(out, record(accountID, p))
	}
	return out
}
