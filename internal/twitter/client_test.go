package twitter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"timeline-archive/internal/ratelimit"
)

// countingStore is an in-memory counter backend recording every increment.
type countingStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingStore() *countingStore {
	return &countingStore{counts: make(map[string]int64)}
}

func (s *countingStore) IncrBucket(_ context.Context, key string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return nil
}

func (s *countingStore) SumBuckets(_ context.Context, keys []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, k := range keys {
		total += s.counts[k]
	}
	return total, nil
}

func (s *countingStore) OldestBucket(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range keys {
		if s.counts[k] > 0 {
			return i, nil
		}
	}
	return -1, nil
}

func (s *countingStore) total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, v := range s.counts {
		n += v
	}
	return n
}

func newTestClient(base string, store ratelimit.CounterStore) *Client {
	log := slog.New(slog.DiscardHandler)
	limiter := ratelimit.NewWithOptions(log, store, 0, nil, nil)
	c := NewClient(log, base, "test-bearer", limiter)
	// retries must not slow tests down
	c.retry = RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1.0}
	return c
}

func TestClient_LookupUsers(t *testing.T) {
	var gotAuth, gotNames string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/lookup.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotNames = r.URL.Query().Get("screen_name")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id_str":"100","screen_name":"alice","name":"Alice","statuses_count":42,"followers_count":10,"favourites_count":3},
			{"id_str":"200","screen_name":"bob","name":"Bob","statuses_count":7}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, newCountingStore())

	profiles, err := c.LookupUsers(context.Background(), []string{"alice", "bob", "ghost"})
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer test-bearer" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotNames != "alice,bob,ghost" {
		t.Errorf("expected comma-joined names, got %q", gotNames)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 resolved profiles, got %d", len(profiles))
	}
	if profiles[0].ID != "100" || profiles[0].PostsCount != 42 {
		t.Errorf("unexpected profile: %+v", profiles[0])
	}
	if profiles[0].FollowingCount != 3 {
		t.Errorf("expected favourites_count mapped to following, got %d", profiles[0].FollowingCount)
	}
	if len(profiles[0].Raw) == 0 {
		t.Error("expected raw payload retained on profile")
	}
}

func TestClient_LookupUsersBatchesAt100(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names := strings.Split(r.URL.Query().Get("screen_name"), ",")
		batches = append(batches, len(names))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, newCountingStore())

	names := make([]string, 250)
	for i := range names {
		names[i] = "user"
	}
	if _, err := c.LookupUsers(context.Background(), names); err != nil {
		t.Fatal(err)
	}

	if len(batches) != 3 || batches[0] != 100 || batches[1] != 100 || batches[2] != 50 {
		t.Errorf("expected batches 100/100/50, got %v", batches)
	}
}

func TestClient_UserTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/statuses/user_timeline.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "100" {
			t.Errorf("expected user_id=100, got %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "20" {
			t.Errorf("expected default page size 20, got %q", got)
		}
		w.Write([]byte(`[
			{"id_str":"2","text":"newer","created_at":"Sat Jun 01 12:00:00 +0000 2024","user":{"id_str":"100"}},
			{"id_str":"1","text":"older","created_at":"Fri May 31 12:00:00 +0000 2024","user":{"id_str":"100"}}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, newCountingStore())

	posts, err := c.UserTimeline(context.Background(), "100", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].ID != "2" || posts[0].AccountID != "100" {
		t.Errorf("unexpected post: %+v", posts[0])
	}
	if posts[0].CreatedAt.IsZero() {
		t.Error("expected created_at parsed from legacy format")
	}
}

func TestClient_EveryAttemptConsumesBudget(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newCountingStore()
	c := newTestClient(srv.URL, store)

	_, err := c.UserTimeline(context.Background(), "100", 20)
	if err == nil {
		t.Fatal("expected error from persistent 503")
	}

	// MaxRetries 2 means 3 attempts, and each one is recorded whether or not
	// it succeeded
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if store.total() != 3 {
		t.Errorf("expected 3 recorded calls, got %d", store.total())
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, newCountingStore())

	_, err := c.UserTimeline(context.Background(), "100", 20)
	if err == nil {
		t.Fatal("expected error from 404")
	}
	if calls != 1 {
		t.Errorf("expected no retry on 404, got %d attempts", calls)
	}
}

func TestClient_RateLimitedRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, newCountingStore())

	if _, err := c.UserTimeline(context.Background(), "100", 20); err != nil {
		t.Fatalf("expected recovery after 429, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestClient_OpenCircuitShortCircuits(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, newCountingStore())
	for i := 0; i < 5; i++ {
		c.cb.RecordFailure()
	}

	_, err := c.UserTimeline(context.Background(), "100", 20)
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no upstream call with open circuit, got %d", calls)
	}
}

func TestClient_Enabled(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	limiter := ratelimit.NewWithOptions(log, newCountingStore(), 0, nil, nil)

	if !NewClient(log, "http://x", "token", limiter).Enabled() {
		t.Error("client with bearer should be enabled")
	}
	if NewClient(log, "http://x", "", limiter).Enabled() {
		t.Error("client without bearer should not be enabled")
	}
}
