package pipeline

import (
	"context"
	"time"

	"timeline-archive/internal/models"
	"timeline-archive/internal/twitter"
)

// The pipeline stages depend on these narrow interfaces rather than on the
// concrete store and client types, so every stage is unit-testable with fakes
// and the limiter/queue/storage stay swappable.

type AccountStore interface {
	ByUsername(ctx context.Context, username string) (models.Account, error)
	ByTwitterID(ctx context.Context, twitterID string) (models.Account, error)
	PostCounts(ctx context.Context, usernames []string) (map[string]int64, error)
	UpsertBatch(ctx context.Context, accs []models.Account) ([]string, error)
	AdvanceStatus(ctx context.Context, username, to string) error
	AdvanceStatusByTwitterID(ctx context.Context, twitterID, to string) error
	StatusesByUsernames(ctx context.Context, usernames []string) ([]models.AccountStatus, error)
	DueForRefresh(ctx context.Context, maxAge time.Duration, limit int) ([]string, error)
}

type PostStore interface {
	IDs(ctx context.Context, accountID string) ([]string, error)
	BulkInsert(ctx context.Context, posts []models.PostRecord) (int, error)
	ReconcileDuplicates(ctx context.Context, accountID string) (int64, error)
}

// ProfileSource resolves usernames to fresh profile snapshots. Satisfied by
// both the authenticated client and the public scraper.
type ProfileSource interface {
	LookupUsers(ctx context.Context, usernames []string) ([]twitter.Profile, error)
}

// TimelineSource fetches the most recent page of an account's posts.
type TimelineSource interface {
	UserTimeline(ctx context.Context, accountID string, count int) ([]twitter.Post, error)
}

// SearchSource streams every post matching a search query.
type SearchSource interface {
	SearchPosts(ctx context.Context, query string, fn func(twitter.Post) error) error
}

// PostHydrator upgrades scraped post ids to full API payloads. Optional; nil
// means scraped payloads are stored as-is.
type PostHydrator interface {
	LookupPosts(ctx context.Context, ids []string) ([]twitter.Post, error)
}

// Archiver receives a copy of each flushed post batch for cold storage.
// Optional and best-effort.
type Archiver interface {
	StoreBatch(ctx context.Context, accountID, key string, data []byte) (string, error)
}
