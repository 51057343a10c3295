package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timeline-archive/internal/metrics"
	"timeline-archive/internal/models"
	"timeline-archive/internal/store"
	"timeline-archive/internal/twitter"
)

// backfillFloor is the fixed lower date boundary for history scans. Nothing
// older is ever requested.
const backfillFloor = "2010-01-01"

// flushBatchSize bounds buffered inserts; every flushed batch is durable and
// a safe resumption point if the run dies.
const flushBatchSize = 500

// Backfill pages through an account's entire history backward in time. Its
// checkpoint is the seen-id set, rebuilt from the stored partition at the
// start of every invocation rather than kept durable on its own.
type Backfill struct {
	log      *slog.Logger
	accounts AccountStore
	posts    PostStore
	search   SearchSource
	hydrator PostHydrator // optional
	archiver Archiver     // optional
	now      func() time.Time
}

func NewBackfill(log *slog.Logger, accounts AccountStore, posts PostStore, search SearchSource) *Backfill {
	return &Backfill{
		log:      log,
		accounts: accounts,
		posts:    posts,
		search:   search,
		now:      time.Now,
	}
}

// WithHydrator routes scraped post ids through the authenticated posts-lookup
// before storage, so archived payloads carry the full API shape.
func (b *Backfill) WithHydrator(h PostHydrator) *Backfill {
	b.hydrator = h
	return b
}

// WithArchiver mirrors every flushed batch to cold storage.
func (b *Backfill) WithArchiver(a Archiver) *Backfill {
	b.archiver = a
	return b
}

// Run backfills one account. It returns true when the account is fully caught
// up: stored post count equals the provider-reported total.
func (b *Backfill) Run(ctx context.Context, username string) (bool, error) {
	acc, err := b.accounts.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("%w: unknown account %s", ErrAcquisition, username)
		}
		return false, fmt.Errorf("%w: load account %s: %v", ErrStorage, username, err)
	}
	if acc.TwitterID == nil {
		return false, fmt.Errorf("%w: account %s has no provider id yet", ErrAcquisition, username)
	}
	accountID := *acc.TwitterID

	if _, err := b.posts.ReconcileDuplicates(ctx, accountID); err != nil {
		return false, fmt.Errorf("%w: reconcile duplicates: %v", ErrStorage, err)
	}

	storedIDs, err := b.posts.IDs(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("%w: rebuild checkpoint: %v", ErrStorage, err)
	}
	seen := make(map[string]bool, len(storedIDs))
	for _, id := range storedIDs {
		seen[id] = true
	}

	if b.complete(int64(len(seen)), acc) {
		return true, b.markUpdated(ctx, acc)
	}

	// upper boundary is fixed at today's date for the whole invocation; the
	// shrinking gap between stored and reported counts is what moves runs
	// forward, not cursor bookkeeping
	until := b.now().Format("2006-01-02")
	query := fmt.Sprintf("(from:%s) until:%s since:%s", username, until, backfillFloor)

	var buffer []twitter.Post
	flushed := 0

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		recs, err := b.hydrate(ctx, accountID, buffer)
		if err != nil {
			return err
		}
		n, err := b.posts.BulkInsert(ctx, recs)
		if err != nil {
			return fmt.Errorf("%w: flush batch: %v", ErrStorage, err)
		}
		metrics.PostsInserted.Add(float64(n))
		flushed += n
		b.archive(ctx, accountID, recs)
		buffer = buffer[:0]
		return nil
	}

	scanErr := b.search.SearchPosts(ctx, query, func(p twitter.Post) error {
		if seen[p.ID] {
			return nil
		}
		seen[p.ID] = true
		buffer = append(buffer, p)
		if len(buffer) >= flushBatchSize {
			return flush()
		}
		return nil
	})

	if scanErr != nil {
		// flushed batches stay durable; unflushed buffer is re-discovered on
		// the next run through the rebuilt seen set
		if errors.Is(scanErr, ErrStorage) {
			return false, scanErr
		}
		return false, fmt.Errorf("%w: %v", ErrScrapeFailed, scanErr)
	}

	if err := flush(); err != nil {
		return false, err
	}

	done := b.complete(int64(len(seen)), acc)
	b.log.Info("backfill_pass_complete",
		"username", username,
		"flushed", flushed,
		"stored", len(seen),
		"reported", acc.PostsCount,
		"caught_up", done,
	)

	if done {
		return true, b.markUpdated(ctx, acc)
	}
	return false, nil
}

// complete deliberately uses >= rather than strict equality: the provider's
// reported count can drop below the stored count after post deletions, and an
// equality check would leave such accounts permanently un-completable.
func (b *Backfill) complete(storedCount int64, acc models.Account) bool {
	return storedCount >= acc.PostsCount
}

func (b *Backfill) markUpdated(ctx context.Context, acc models.Account) error {
	if acc.Status == models.StatusUpdated {
		return nil
	}
	if err := b.accounts.AdvanceStatus(ctx, acc.Username, models.StatusUpdated); err != nil {
		return fmt.Errorf("%w: mark updated: %v", ErrStorage, err)
	}
	b.log.Info("account_caught_up", "username", acc.Username)
	return nil
}

// hydrate swaps scraped payloads for full API payloads when a hydrator is
// configured. Hydration is an enrichment: on failure the scraped payloads are
// stored as-is.
func (b *Backfill) hydrate(ctx context.Context, accountID string, posts []twitter.Post) ([]models.PostRecord, error) {
	recs := records(accountID, posts)
	if b.hydrator == nil {
		return recs, nil
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}

	full, err := b.hydrator.LookupPosts(ctx, ids)
	if err != nil {
		b.log.Warn("hydration_failed", "account_id", accountID, "count", len(ids), "error", err)
		return recs, nil
	}

	byID := make(map[string]twitter.Post, len(full))
	for _, p := range full {
		byID[p.ID] = p
	}
	for i := range recs {
		if p, ok := byID[recs[i].PostID]; ok {
			recs[i].Payload = p.Raw
		}
	}
	return recs, nil
}

func (b *Backfill) archive(ctx context.Context, accountID string, recs []models.PostRecord) {
	if b.archiver == nil {
		return
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s/%d.json", accountID, b.now().UnixNano())
	if _, err := b.archiver.StoreBatch(ctx, accountID, key, data); err != nil {
		b.log.Warn("batch_archive_failed", "account_id", accountID, "error", err)
	}
}
