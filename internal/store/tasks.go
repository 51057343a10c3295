package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"timeline-archive/internal/db"
	"timeline-archive/internal/models"
)

type Tasks struct {
	db *db.DB
}

func NewTasks(d *db.DB) *Tasks {
	return &Tasks{db: d}
}

// Create records a sync task. Tasks are immutable after this insert.
func (s *Tasks) Create(ctx context.Context, task models.SyncTask) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO sync_tasks (session_id, users_list) VALUES ($1, $2)`,
		task.SessionID, task.UsersList,
	)
	return err
}

func (s *Tasks) BySessionID(ctx context.Context, sessionID string) (models.SyncTask, error) {
	var t models.SyncTask
	err := s.db.Pool.QueryRow(ctx,
		`SELECT session_id, users_list, created_at FROM sync_tasks WHERE session_id = $1`,
		sessionID,
	).Scan(&t.SessionID, &t.UsersList, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}
