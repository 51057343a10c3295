package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"timeline-archive/internal/db"
	"timeline-archive/internal/models"
)

var ErrNotFound = errors.New("not found")

// statusRankSQL orders the account lifecycle so a status never regresses.
// Kept in SQL so the guard holds under concurrent workers.
const statusRankSQL = `CASE %s WHEN 'new' THEN 0 WHEN 'started' THEN 1 WHEN 'updated' THEN 2 ELSE -1 END`

type Accounts struct {
	db  *db.DB
	log *slog.Logger
}

func NewAccounts(d *db.DB, log *slog.Logger) *Accounts {
	return &Accounts{db: d, log: log}
}

const accountColumns = `id, twitter_id, username, name, following_count, followers_count,
	description, posts_count, status, created_at, updated_at, last_refreshed_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.TwitterID,
		&a.Username,
		&a.Name,
		&a.FollowingCount,
		&a.FollowersCount,
		&a.Description,
		&a.PostsCount,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastRefreshedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (s *Accounts) ByUsername(ctx context.Context, username string) (models.Account, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`,
		username,
	)
	return scanAccount(row)
}

func (s *Accounts) ByTwitterID(ctx context.Context, twitterID string) (models.Account, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE twitter_id = $1`,
		twitterID,
	)
	return scanAccount(row)
}

// PostCounts projects username -> provider-reported posts_count for the given
// set. Only stored accounts appear in the result; absence means "new".
func (s *Accounts) PostCounts(ctx context.Context, usernames []string) (map[string]int64, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT username, posts_count FROM accounts WHERE username = ANY($1)`,
		usernames,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64, len(usernames))
	for rows.Next() {
		var username string
		var count int64
		if err := rows.Scan(&username, &count); err != nil {
			return nil, err
		}
		out[username] = count
	}
	return out, rows.Err()
}

const upsertAccountSQL = `
	INSERT INTO accounts (twitter_id, username, name, following_count, followers_count, description, posts_count, status, last_refreshed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 'new', now())
	ON CONFLICT (username) DO UPDATE SET
		twitter_id = COALESCE(EXCLUDED.twitter_id, accounts.twitter_id),
		name = EXCLUDED.name,
		following_count = EXCLUDED.following_count,
		followers_count = EXCLUDED.followers_count,
		description = EXCLUDED.description,
		posts_count = EXCLUDED.posts_count,
		last_refreshed_at = now(),
		updated_at = now()`

// UpsertBatch merges profile snapshots in one pipelined batch. Accounts fail
// independently; the usernames that could not be written are returned so the
// caller can log and move on.
func (s *Accounts) UpsertBatch(ctx context.Context, accs []models.Account) ([]string, error) {
	if len(accs) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, a := range accs {
		batch.Queue(upsertAccountSQL,
			a.TwitterID, a.Username, a.Name, a.FollowingCount, a.FollowersCount, a.Description, a.PostsCount)
	}

	br := s.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	var failed []string
	for _, a := range accs {
		if _, err := br.Exec(); err != nil {
			s.log.Warn("account_upsert_failed", "username", a.Username, "error", err)
			failed = append(failed, a.Username)
		}
	}

	if len(failed) == len(accs) {
		return failed, fmt.Errorf("account batch: all %d upserts failed", len(accs))
	}
	return failed, nil
}

// AdvanceStatus moves an account's status forward. Regressions are silently
// dropped; the error status is reachable from any state.
func (s *Accounts) AdvanceStatus(ctx context.Context, username, to string) error {
	return s.advanceStatus(ctx, "username", username, to)
}

func (s *Accounts) AdvanceStatusByTwitterID(ctx context.Context, twitterID, to string) error {
	return s.advanceStatus(ctx, "twitter_id", twitterID, to)
}

func (s *Accounts) advanceStatus(ctx context.Context, keyCol, key, to string) error {
	sql := fmt.Sprintf(
		`UPDATE accounts SET status = $2, updated_at = now()
		 WHERE %s = $1 AND ($2 = 'error' OR (%s) < (%s))`,
		keyCol,
		fmt.Sprintf(statusRankSQL, "status"),
		fmt.Sprintf(statusRankSQL, "$2"),
	)

	_, err := s.db.Pool.Exec(ctx, sql, key, to)
	return err
}

// StatusesByUsernames returns the status projection used for task polling.
func (s *Accounts) StatusesByUsernames(ctx context.Context, usernames []string) ([]models.AccountStatus, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT username, status FROM accounts WHERE username = ANY($1) ORDER BY username`,
		usernames,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AccountStatus
	for rows.Next() {
		var st models.AccountStatus
		if err := rows.Scan(&st.Username, &st.Status); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DueForRefresh lists usernames whose profile has not been refreshed within
// maxAge, oldest first.
func (s *Accounts) DueForRefresh(ctx context.Context, maxAge time.Duration, limit int) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT username FROM accounts
		 WHERE last_refreshed_at IS NULL OR last_refreshed_at < now() - make_interval(secs => $1)
		 ORDER BY COALESCE(last_refreshed_at, 'epoch'::timestamptz) ASC
		 LIMIT $2`,
		maxAge.Seconds(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
