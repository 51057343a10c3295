package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"timeline-archive/internal/redis"
)

// Job names, one per pipeline stage transition.
const (
	JobSyncProfiles    = "sync_profiles"
	JobPullTimeline    = "pull_timeline"
	JobBackfillHistory = "backfill_history"
	JobRefreshDue      = "refresh_due_accounts"
)

// Job is one asynchronous unit of pipeline work. Exactly one of the payload
// fields is set, depending on Type.
type Job struct {
	Type       string    `json:"type"`
	Usernames  []string  `json:"usernames,omitempty"`
	AccountID  string    `json:"account_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Enqueuer is the write side of the queue. The orchestrator chains stages
// exclusively through this interface, which keeps the chain testable without
// a broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

const (
	jobsKey = "queue:jobs"
	dlqKey  = "dlq:jobs"

	popTimeout  = 5 * time.Second
	maxAttempts = 5
)

// Queue is the redis-list backed job transport.
type Queue struct {
	log   *slog.Logger
	redis *redis.Client
}

func New(log *slog.Logger, redisClient *redis.Client) *Queue {
	return &Queue{log: log, redis: redisClient}
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.redis.RDB().LPush(ctx, jobsKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	q.log.Debug("job_enqueued", "type", job.Type, "attempts", job.Attempts)
	return nil
}

// Dequeue blocks up to popTimeout for the next job. ok is false when the
// queue stayed empty, which is not an error.
func (q *Queue) Dequeue(ctx context.Context) (Job, bool, error) {
	res, err := q.redis.RDB().BRPop(ctx, popTimeout, jobsKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}
	// BRPop returns [key, value]
	if len(res) != 2 {
		return Job{}, false, fmt.Errorf("unexpected brpop reply of length %d", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.log.Warn("job_unparseable", "error", err)
		return Job{}, false, nil
	}
	return job, true, nil
}

// Retry puts a failed job back on the queue, or parks it on the dead-letter
// list once its attempts are exhausted.
func (q *Queue) Retry(ctx context.Context, job Job, cause error) {
	job.Attempts++
	if job.Attempts >= maxAttempts {
		q.sendToDLQ(ctx, job, cause)
		return
	}
	if err := q.Enqueue(ctx, job); err != nil {
		q.log.Error("job_requeue_failed", "type", job.Type, "error", err)
	}
}

func (q *Queue) sendToDLQ(ctx context.Context, job Job, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	data, _ := json.Marshal(map[string]any{
		"job":       job,
		"error":     msg,
		"timestamp": time.Now(),
	})
	q.redis.RDB().LPush(ctx, dlqKey, data)
	q.redis.RDB().Expire(ctx, dlqKey, 24*time.Hour)
	q.log.Error("job_dead_lettered", "type", job.Type, "attempts", job.Attempts, "error", msg)
}
