package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"timeline-archive/internal/logging"
	"timeline-archive/internal/ratelimit"
)

// DefaultTimelinePageSize is the provider's default timeline page.
const DefaultTimelinePageSize = 20

// lookup batches are capped by the provider at 100 ids/names per call
const maxLookupBatch = 100

var errCircuitOpen = errors.New("provider circuit open")

// Client is the authenticated provider API client. Every call consults the
// rate limiter before going out and records the attempt afterwards,
// regardless of outcome.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	base    string
	bearer  string
	limiter *ratelimit.Limiter
	cb      *CircuitBreaker
	retry   RetryConfig
}

func NewClient(log *slog.Logger, base, bearer string, limiter *ratelimit.Limiter) *Client {
	log.Info("twitter_client_init", "base", base, "bearer", logging.MaskSecret(bearer))
	return &Client{
		log:     log,
		http:    NewProviderHTTPClient(),
		base:    strings.TrimRight(base, "/"),
		bearer:  bearer,
		limiter: limiter,
		cb:      NewCircuitBreaker(),
		retry:   DefaultRetryConfig(),
	}
}

// Enabled reports whether authenticated access is configured. When false the
// pipeline falls back to the public scraper for profile resolution.
func (c *Client) Enabled() bool {
	return c.bearer != ""
}

// LookupUsers resolves up to 100 usernames per provider call into fresh
// profile snapshots. Unknown usernames are simply absent from the result.
func (c *Client) LookupUsers(ctx context.Context, usernames []string) ([]Profile, error) {
	var out []Profile
	for start := 0; start < len(usernames); start += maxLookupBatch {
		end := start + maxLookupBatch
		if end > len(usernames) {
			end = len(usernames)
		}

		q := url.Values{}
		q.Set("screen_name", strings.Join(usernames[start:end], ","))

		var raws []json.RawMessage
		if err := c.do(ctx, ratelimit.MethodUsersLookup, "/users/lookup.json", q, &raws); err != nil {
			return out, err
		}

		for _, raw := range raws {
			var u apiUser
			if err := json.Unmarshal(raw, &u); err != nil {
				c.log.Warn("user_payload_unparseable", "error", err)
				continue
			}
			out = append(out, u.profile(raw))
		}
	}
	return out, nil
}

// UserTimeline fetches the most recent posts for an account, newest first.
func (c *Client) UserTimeline(ctx context.Context, accountID string, count int) ([]Post, error) {
	if count <= 0 {
		count = DefaultTimelinePageSize
	}

	q := url.Values{}
	q.Set("user_id", accountID)
	q.Set("count", strconv.Itoa(count))

	var raws []json.RawMessage
	if err := c.do(ctx, ratelimit.MethodTimelinePull, "/statuses/user_timeline.json", q, &raws); err != nil {
		return nil, err
	}
	return c.decodePosts(raws), nil
}

// LookupPosts hydrates post ids into full payloads, batching per provider cap.
func (c *Client) LookupPosts(ctx context.Context, ids []string) ([]Post, error) {
	var out []Post
	for start := 0; start < len(ids); start += maxLookupBatch {
		end := start + maxLookupBatch
		if end > len(ids) {
			end = len(ids)
		}

		q := url.Values{}
		q.Set("id", strings.Join(ids[start:end], ","))

		var raws []json.RawMessage
		if err := c.do(ctx, ratelimit.MethodPostsLookup, "/statuses/lookup.json", q, &raws); err != nil {
			return out, err
		}
		out = append(out, c.decodePosts(raws)...)
	}
	return out, nil
}

func (c *Client) decodePosts(raws []json.RawMessage) []Post {
	posts := make([]Post, 0, len(raws))
	for _, raw := range raws {
		var p apiPost
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warn("post_payload_unparseable", "error", err)
			continue
		}
		posts = append(posts, p.post(raw))
	}
	return posts
}

func (c *Client) do(ctx context.Context, m ratelimit.Method, path string, q url.Values, out any) error {
	if !c.cb.Allow() {
		return errCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := CalculateBackoff(c.retry, attempt-1, retryAfterOf(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx, m); err != nil {
			return err
		}
		c.limiter.RecordCall(ctx, m)

		err := c.doOnce(ctx, path, q, out)
		if err == nil {
			c.cb.RecordSuccess()
			return nil
		}

		lastErr = err
		c.cb.RecordFailure()

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &statusError{
			code:       resp.StatusCode,
			path:       path,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type statusError struct {
	code       int
	path       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned %d for %s", e.code, e.path)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func retryAfterOf(err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryAfter
	}
	return 0
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
