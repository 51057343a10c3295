package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Scraper pulls account and post data from the provider's public, unauthenticated
// endpoints. It is the fallback when no API bearer token is configured, and the
// only path for full-history search. Scraper calls do not consume API budget.
type Scraper struct {
	log  *slog.Logger
	http *http.Client
	base string
}

func NewScraper(log *slog.Logger, base string) *Scraper {
	return &Scraper{
		log:  log,
		http: NewProviderHTTPClient(),
		base: strings.TrimRight(base, "/"),
	}
}

type scrapedProfile struct {
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	FavouritesCount int64  `json:"favourites_count"`
	FollowersCount  int64  `json:"followers_count"`
	StatusesCount   int64  `json:"statuses_count"`
}

type scrapedSearchPage struct {
	Posts      []json.RawMessage `json:"posts"`
	NextCursor string            `json:"next_cursor"`
}

// FetchProfile scrapes a single account's public profile.
func (s *Scraper) FetchProfile(ctx context.Context, username string) (Profile, error) {
	q := url.Values{}
	q.Set("screen_name", username)

	raw, err := s.get(ctx, "/profile", q)
	if err != nil {
		return Profile{}, err
	}

	var p scrapedProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("scrape profile %s: %w", username, err)
	}
	if p.IDStr == "" {
		return Profile{}, fmt.Errorf("scrape profile %s: empty response", username)
	}

	return Profile{
		ID:             p.IDStr,
		Username:       p.ScreenName,
		Name:           p.Name,
		Description:    p.Description,
		FollowingCount: p.FavouritesCount,
		FollowersCount: p.FollowersCount,
		PostsCount:     p.StatusesCount,
		Raw:            raw,
	}, nil
}

// LookupUsers resolves usernames one by one through the public profile page.
// Failures are per-username: unresolved names are logged and skipped so the
// rest of the batch still lands.
func (s *Scraper) LookupUsers(ctx context.Context, usernames []string) ([]Profile, error) {
	var out []Profile
	for _, name := range usernames {
		p, err := s.FetchProfile(ctx, name)
		if err != nil {
			s.log.Warn("profile_scrape_failed", "username", name, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// UserTimeline scrapes the most recent posts for a user id.
func (s *Scraper) UserTimeline(ctx context.Context, accountID string, count int) ([]Post, error) {
	if count <= 0 {
		count = DefaultTimelinePageSize
	}

	q := url.Values{}
	q.Set("user_id", accountID)
	q.Set("count", fmt.Sprintf("%d", count))

	raw, err := s.get(ctx, "/timeline", q)
	if err != nil {
		return nil, err
	}

	var rawPosts []json.RawMessage
	if err := json.Unmarshal(raw, &rawPosts); err != nil {
		return nil, fmt.Errorf("scrape timeline %s: %w", accountID, err)
	}

	posts := make([]Post, 0, len(rawPosts))
	for _, rp := range rawPosts {
		var p apiPost
		if err := json.Unmarshal(rp, &p); err != nil {
			s.log.Warn("scraped_post_unparseable", "error", err)
			continue
		}
		posts = append(posts, p.post(rp))
	}
	return posts, nil
}

// SearchPosts streams every post matching query through fn, following the
// scrape cursor until the result set is exhausted. An error from fn stops the
// stream and is returned unchanged.
func (s *Scraper) SearchPosts(ctx context.Context, query string, fn func(Post) error) error {
	cursor := ""
	for {
		q := url.Values{}
		q.Set("q", query)
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		raw, err := s.get(ctx, "/search", q)
		if err != nil {
			return err
		}

		var page scrapedSearchPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("scrape search page: %w", err)
		}

		for _, rawPost := range page.Posts {
			var p apiPost
			if err := json.Unmarshal(rawPost, &p); err != nil {
				s.log.Warn("scraped_post_unparseable", "error", err)
				continue
			}
			if err := fn(p.post(rawPost)); err != nil {
				return err
			}
		}

		if page.NextCursor == "" || len(page.Posts) == 0 {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (s *Scraper) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	u := s.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) timeline-archive/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scrape endpoint %s returned %d", path, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
