package twitter

import (
	"encoding/json"
	"time"
)

// Profile is a fresh snapshot of a provider account, from either the
// authenticated API or the public scraper.
type Profile struct {
	ID             string
	Username       string
	Name           string
	Description    string
	FollowingCount int64
	FollowersCount int64
	PostsCount     int64
	Raw            json.RawMessage
}

// Post is one provider post. Raw carries the full provider payload; the other
// fields are the projection the pipeline works with.
type Post struct {
	ID        string
	AccountID string
	Text      string
	CreatedAt time.Time
	Raw       json.RawMessage
}

// createdAtFormat is the provider's legacy timestamp format.
const createdAtFormat = "Mon Jan 02 15:04:05 -0700 2006"

type apiUser struct {
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	FavouritesCount int64  `json:"favourites_count"`
	FollowersCount  int64  `json:"followers_count"`
	StatusesCount   int64  `json:"statuses_count"`
}

func (u apiUser) profile(raw json.RawMessage) Profile {
	return Profile{
		ID:             u.IDStr,
		Username:       u.ScreenName,
		Name:           u.Name,
		Description:    u.Description,
		FollowingCount: u.FavouritesCount,
		FollowersCount: u.FollowersCount,
		PostsCount:     u.StatusesCount,
		Raw:            raw,
	}
}

type apiPost struct {
	IDStr     string `json:"id_str"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	User      struct {
		IDStr string `json:"id_str"`
	} `json:"user"`
}

func (p apiPost) post(raw json.RawMessage) Post {
	ts, _ := time.Parse(createdAtFormat, p.CreatedAt)
	return Post{
		ID:        p.IDStr,
		AccountID: p.User.IDStr,
		Text:      p.Text,
		CreatedAt: ts,
		Raw:       raw,
	}
}
