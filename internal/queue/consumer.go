package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"timeline-archive/internal/metrics"
)

// Handler executes one job. Returning an error means the job is retryable and
// goes back through the queue's retry policy; handlers convert terminal
// failures to nil after logging them.
type Handler func(ctx context.Context, job Job) error

// jobTimeout bounds a single job execution. Backfill streams many pages, so
// the bound is generous; a worker slot must still never hang forever.
const jobTimeout = 10 * time.Minute

type worker struct {
	id       int
	stopChan chan bool
}

// Consumer runs a pool of identical stateless workers over the queue. Workers
// share nothing in-process; chaining happens only through enqueues.
type Consumer struct {
	log     *slog.Logger
	queue   *Queue
	handler Handler
	workers []*worker
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func NewConsumer(log *slog.Logger, q *Queue, handler Handler) *Consumer {
	return &Consumer{
		log:     log,
		queue:   q,
		handler: handler,
	}
}

func (c *Consumer) Start(workerCount int) {
	if workerCount < 1 {
		workerCount = 4
	}
	if workerCount > 64 {
		workerCount = 64
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < workerCount; i++ {
		w := &worker{
			id:       i + 1,
			stopChan: make(chan bool, 1),
		}
		c.workers = append(c.workers, w)

		c.wg.Add(1)
		go c.run(w)
	}

	c.log.Info("queue_workers_started", "count", workerCount)
}

func (c *Consumer) run(w *worker) {
	defer c.wg.Done()

	for {
		select {
		case <-w.stopChan:
			c.log.Info("queue_worker_stopped", "worker_id", w.id)
			return
		default:
		}

		job, ok, err := c.queue.Dequeue(context.Background())
		if err != nil {
			c.log.Warn("dequeue_failed", "worker_id", w.id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		err = c.handler(ctx, job)
		cancel()

		metrics.ObserveJob(job.Type, start, err)

		if err != nil {
			c.log.Warn("job_failed",
				"worker_id", w.id,
				"type", job.Type,
				"attempts", job.Attempts,
				"error", err,
			)
			c.queue.Retry(context.Background(), job, err)
		}
	}
}

func (c *Consumer) Stop() {
	c.mu.Lock()

	for _, w := range c.workers {
		select {
		case w.stopChan <- true:
		default:
		}
	}

	c.mu.Unlock()

	c.wg.Wait()
	c.log.Info("all_queue_workers_stopped")
}
