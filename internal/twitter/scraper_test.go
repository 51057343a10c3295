package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestScraper(base string) *Scraper {
	return NewScraper(slog.New(slog.DiscardHandler), base)
}

func TestScraper_FetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profile" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("screen_name"); got != "alice" {
			t.Errorf("expected screen_name=alice, got %q", got)
		}
		w.Write([]byte(`{"id_str":"100","screen_name":"alice","name":"Alice","statuses_count":42,"followers_count":9,"favourites_count":3}`))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	p, err := s.FetchProfile(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "100" || p.Username != "alice" || p.PostsCount != 42 {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.FollowingCount != 3 {
		t.Errorf("expected favourites_count mapped to following, got %d", p.FollowingCount)
	}
}

func TestScraper_FetchProfileEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	if _, err := s.FetchProfile(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for profile with no id")
	}
}

func TestScraper_LookupUsersSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("screen_name")
		if name == "ghost" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"id_str":"1","screen_name":%q}`, name)
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	profiles, err := s.LookupUsers(context.Background(), []string{"alice", "ghost", "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 resolved profiles, got %d", len(profiles))
	}
	if profiles[0].Username != "alice" || profiles[1].Username != "bob" {
		t.Errorf("unexpected profiles: %+v", profiles)
	}
}

func TestScraper_UserTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/timeline" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "100" {
			t.Errorf("expected user_id=100, got %q", got)
		}
		w.Write([]byte(`[{"id_str":"1","text":"hi","user":{"id_str":"100"}}]`))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	posts, err := s.UserTimeline(context.Background(), "100", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != "1" {
		t.Errorf("unexpected posts: %+v", posts)
	}
}

func TestScraper_SearchPostsFollowsCursor(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			w.Write([]byte(`{"posts":[{"id_str":"1"},{"id_str":"2"}],"next_cursor":"p2"}`))
		case "p2":
			w.Write([]byte(`{"posts":[{"id_str":"3"}],"next_cursor":""}`))
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	var ids []string
	err := s.SearchPosts(context.Background(), "(from:alice)", func(p Post) error {
		ids = append(ids, p.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(ids) != 3 {
		t.Fatalf("expected 3 posts across 2 pages, got %v", ids)
	}
	if len(cursors) != 2 || cursors[1] != "p2" {
		t.Errorf("expected cursor chain [\"\", p2], got %v", cursors)
	}
}

func TestScraper_SearchPostsCallbackErrorStops(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Write([]byte(`{"posts":[{"id_str":"1"},{"id_str":"2"}],"next_cursor":"more"}`))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	sentinel := errors.New("stop here")
	err := s.SearchPosts(context.Background(), "q", func(p Post) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error returned unchanged, got %v", err)
	}
	if pages != 1 {
		t.Errorf("expected pagination to stop after callback error, got %d pages", pages)
	}
}

func TestScraper_SearchPostsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)

	err := s.SearchPosts(context.Background(), "q", func(Post) error { return nil })
	if err == nil {
		t.Fatal("expected error from upstream 502")
	}
}
