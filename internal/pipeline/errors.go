package pipeline

import "errors"

// Stage failure taxonomy. The orchestrator maps these onto the queue's retry
// policy instead of catching everything identically.
var (
	// ErrAcquisition: upstream returned nothing usable at all. The stage
	// aborted with no partial write; retrying the same input will not help.
	ErrAcquisition = errors.New("acquisition failed")

	// ErrScrapeFailed: backfill scraping died mid-stream. Flushed batches are
	// durable; the stage is retryable from a re-derived checkpoint.
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrStorage: the persistence layer was unreachable or rejected a write.
	// Surfaced rather than swallowed, because ignoring it can leave the dedup
	// state inconsistent.
	ErrStorage = errors.New("storage failed")
)

// Retryable reports whether the queue should retry a failed stage. Only a
// total acquisition failure aborts the chain; everything transient retries.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrAcquisition)
}
