package store

import (
	"context"
	"log/slog"
	"time"

	"timeline-archive/internal/db"
	"timeline-archive/internal/models"
)

// Posts owns the per-account post partitions. A partition is the slice of the
// posts table keyed by one account id.
type Posts struct {
	db     *db.DB
	writer *db.BatchWriter
	log    *slog.Logger
}

func NewPosts(d *db.DB, log *slog.Logger) *Posts {
	return &Posts{db: d, writer: db.NewBatchWriter(d, log), log: log}
}

// IDs loads the full set of stored post ids for the partition.
func (s *Posts) IDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT post_id FROM posts WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Posts) Count(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM posts WHERE account_id = $1`,
		accountID,
	).Scan(&n)
	return n, err
}

const insertPostSQL = `
	INSERT INTO posts (account_id, post_id, payload, fetched_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (account_id, post_id) DO NOTHING`

// BulkInsert persists post records in chunks. The unique index absorbs
// concurrent duplicates, so re-inserting an already-stored id is a no-op
// rather than an error.
func (s *Posts) BulkInsert(ctx context.Context, posts []models.PostRecord) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(posts))
	now := time.Now()
	for _, p := range posts {
		fetchedAt := p.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}
		rows = append(rows, []any{p.AccountID, p.PostID, p.Payload, fetchedAt})
	}

	return s.writer.Write(ctx, "posts_insert", insertPostSQL, rows)
}

// ReconcileDuplicates deletes all-but-one row of every duplicate post id in
// the partition. Partitions written before the uniqueness constraint existed
// can still carry duplicates; stored state must never keep them.
func (s *Posts) ReconcileDuplicates(ctx context.Context, accountID string) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM posts a
		 USING posts b
		 WHERE a.account_id = $1
		   AND b.account_id = $1
		   AND a.post_id = b.post_id
		   AND a.ctid > b.ctid`,
		accountID,
	)
	if err != nil {
		return 0, err
	}
	if n := tag.RowsAffected(); n > 0 {
		s.log.Warn("duplicate_posts_reconciled", "account_id", accountID, "deleted", n)
		return n, nil
	}
	return 0, nil
}

// LastTexts returns the text field of the n most recently fetched posts.
func (s *Posts) LastTexts(ctx context.Context, accountID string, n int) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT COALESCE(payload->>'text', '') FROM posts
		 WHERE account_id = $1
		 ORDER BY fetched_at DESC, post_id DESC
		 LIMIT $2`,
		accountID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
