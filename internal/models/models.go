package models

import "time"

// Account lifecycle. Status only moves forward (new -> started -> updated);
// error is reachable from any state.
const (
	StatusNew     = "new"
	StatusStarted = "started"
	StatusUpdated = "updated"
	StatusError   = "error"
)

// StatusRank returns the position of a status in the lifecycle, or -1 for
// statuses that never participate in forward ordering.
func StatusRank(s string) int {
	switch s {
	case StatusNew:
		return 0
	case StatusStarted:
		return 1
	case StatusUpdated:
		return 2
	default:
		return -1
	}
}

type Account struct {
	ID              int64      `json:"id"`
	TwitterID       *string    `json:"twitter_id,omitempty"`
	Username        string     `json:"username"`
	Name            string     `json:"name"`
	FollowingCount  int64      `json:"following_count"`
	FollowersCount  int64      `json:"followers_count"`
	Description     string     `json:"description"`
	PostsCount      int64      `json:"posts_count"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
}

// AccountStatus is the projection returned when polling a sync task.
type AccountStatus struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// PostRecord is one persisted post inside an account partition. Payload is the
// raw provider JSON, stored as-is.
type PostRecord struct {
	AccountID string    `json:"account_id"`
	PostID    string    `json:"post_id"`
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SyncTask records a client-initiated sync request. Immutable after creation;
// read back only for status polling.
type SyncTask struct {
	SessionID string    `json:"session_id"`
	UsersList []string  `json:"users_list"`
	CreatedAt time.Time `json:"created_at"`
}
