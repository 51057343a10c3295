package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timeline-archive/internal/metrics"
)

// Method identifies one provider API method with its own call budget.
type Method string

const (
	MethodUsersLookup  Method = "users-lookup"
	MethodPostsLookup  Method = "posts-lookup"
	MethodTimelinePull Method = "timeline-pull"
)

// DefaultWindow matches the provider's 15-minute reset cadence.
const DefaultWindow = 15 * time.Minute

// bucketSize is the granularity of the trailing-window counters.
const bucketSize = 15 * time.Second

// DefaultBudgets are the provider's per-method caps per window.
func DefaultBudgets() map[Method]int64 {
	return map[Method]int64{
		MethodUsersLookup:  300,
		MethodPostsLookup:  300,
		MethodTimelinePull: 150,
	}
}

// CounterStore is the external atomic counter backend. All workers increment
// the same counters concurrently; the store must make that atomic.
type CounterStore interface {
	IncrBucket(ctx context.Context, key string, ttl time.Duration) error
	SumBuckets(ctx context.Context, keys []string) (int64, error)
	OldestBucket(ctx context.Context, keys []string) (int, error)
}

// Limiter spaces calls to the provider API so the trailing-window count stays
// under the per-method budget. If the counter store is unreachable the limiter
// degrades to a no-op: accounting is an optimization, never a hard dependency.
type Limiter struct {
	log     *slog.Logger
	store   CounterStore
	window  time.Duration
	budgets map[Method]int64
	now     func() time.Time
}

func New(log *slog.Logger, store CounterStore) *Limiter {
	return &Limiter{
		log:     log,
		store:   store,
		window:  DefaultWindow,
		budgets: DefaultBudgets(),
		now:     time.Now,
	}
}

// NewWithOptions builds a limiter with a custom window and budgets, mainly for
// tests.
func NewWithOptions(log *slog.Logger, store CounterStore, window time.Duration, budgets map[Method]int64, now func() time.Time) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{log: log, store: store, window: window, budgets: budgets, now: now}
}

// ShouldThrottle returns the wait to insert before the next call to method.
// Under 75% of budget there is no wait; above it, remaining calls are spread
// evenly across the time left in the window instead of bursting then stalling.
func (l *Limiter) ShouldThrottle(ctx context.Context, m Method) time.Duration {
	budget := l.budgets[m]
	keys := l.bucketKeys(m)

	count, err := l.store.SumBuckets(ctx, keys)
	if err != nil {
		l.log.Debug("rate_counter_unavailable", "method", string(m), "error", err)
		return 0
	}
	if count == 0 {
		return 0
	}

	remaining := l.remainingWindow(ctx, keys)

	if budget <= 0 {
		return remaining
	}
	if count <= (budget*3)/4 {
		return 0
	}

	left := budget - count
	if left <= 0 {
		// budget exhausted: wait out the window rather than divide by zero
		return remaining
	}

	wait := remaining / time.Duration(left)
	metrics.ThrottleWait.WithLabelValues(string(m)).Observe(wait.Seconds())
	return wait
}

// RecordCall records that a call to method was just issued. It increments
// unconditionally; an attempt consumes budget whether or not it succeeded.
func (l *Limiter) RecordCall(ctx context.Context, m Method) {
	key := l.bucketKey(m, l.now().Truncate(bucketSize))
	if err := l.store.IncrBucket(ctx, key, l.window+bucketSize); err != nil {
		l.log.Debug("rate_record_failed", "method", string(m), "error", err)
	}
	metrics.APICalls.WithLabelValues(string(m)).Inc()
}

// Wait sleeps for the computed throttle duration, honoring ctx cancellation.
func (l *Limiter) Wait(ctx context.Context, m Method) error {
	d := l.ShouldThrottle(ctx, m)
	if d <= 0 {
		return nil
	}
	l.log.Debug("throttling", "method", string(m), "wait", d.String())

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remainingWindow estimates the time until the oldest occupied bucket falls
// out of the trailing window. With no occupied bucket the full window remains.
func (l *Limiter) remainingWindow(ctx context.Context, keys []string) time.Duration {
	idx, err := l.store.OldestBucket(ctx, keys)
	if err != nil || idx < 0 {
		return l.window
	}
	// keys are ordered oldest first; bucket idx started (len-1-idx) slots ago
	elapsed := time.Duration(len(keys)-1-idx) * bucketSize
	remaining := l.window - elapsed
	if remaining < bucketSize {
		remaining = bucketSize
	}
	return remaining
}

func (l *Limiter) bucketKeys(m Method) []string {
	n := int(l.window / bucketSize)
	cur := l.now().Truncate(bucketSize)
	keys := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		keys = append(keys, l.bucketKey(m, cur.Add(-time.Duration(i)*bucketSize)))
	}
	return keys
}

func (l *Limiter) bucketKey(m Method, t time.Time) string {
	return fmt.Sprintf("rl:%s:%d", m, t.Unix())
}
