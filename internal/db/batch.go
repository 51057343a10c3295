package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// BatchConfig holds configuration for batched write operations.
type BatchConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	OnProgress func(processed, total int)
}

// DefaultBatchConfig returns sensible defaults for batched writes. The 500-row
// chunk bounds memory and makes each flushed chunk a safe resumption point.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:  500,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		OnProgress: nil,
	}
}

// ExecBatch runs the same statement once per row of args, pipelined in chunks.
// Rows fail independently: a bad row is reported in the returned error slice
// while the remaining rows still execute. Returns the number of rows that
// succeeded.
func (d *DB) ExecBatch(ctx context.Context, sql string, rows [][]any, cfg BatchConfig) (int, []error) {
	if len(rows) == 0 {
		return 0, nil
	}

	succeeded := 0
	var rowErrs []error

	for i := 0; i < len(rows); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, errs := d.execChunk(ctx, sql, rows[i:end], cfg.MaxRetries, cfg.RetryDelay)
		succeeded += n
		rowErrs = append(rowErrs, errs...)

		if cfg.OnProgress != nil {
			cfg.OnProgress(i+len(rows[i:end]), len(rows))
		}
	}

	return succeeded, rowErrs
}

func (d *DB) execChunk(ctx context.Context, sql string, rows [][]any, maxRetries int, retryDelay time.Duration) (int, []error) {
	var lastErrs []error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return 0, []error{ctx.Err()}
		default:
		}

		n, errs := d.sendChunk(ctx, sql, rows)
		if len(errs) == 0 {
			return n, nil
		}

		// partial success is not retried wholesale; only a chunk that failed
		// entirely (connection-level error) gets another attempt
		if n > 0 {
			return n, errs
		}

		lastErrs = errs
		if attempt < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return 0, lastErrs
}

func (d *DB) sendChunk(ctx context.Context, sql string, rows [][]any) (int, []error) {
	batch := &pgx.Batch{}
	for _, args := range rows {
		batch.Queue(sql, args...)
	}

	br := d.Pool.SendBatch(ctx, batch)
	defer br.Close()

	succeeded := 0
	var errs []error
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		succeeded++
	}
	return succeeded, errs
}

// BatchWriter wraps ExecBatch with progress and outcome logging.
type BatchWriter struct {
	db     *DB
	logger *slog.Logger
}

func NewBatchWriter(db *DB, logger *slog.Logger) *BatchWriter {
	return &BatchWriter{
		db:     db,
		logger: logger,
	}
}

// Write executes the statement for every row in chunks, logging progress and
// the final rate. Row-level failures are logged and counted, not fatal.
func (bw *BatchWriter) Write(ctx context.Context, name, sql string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cfg := DefaultBatchConfig()
	cfg.OnProgress = func(processed, total int) {
		bw.logger.Debug("batch_progress",
			"op", name,
			"processed", processed,
			"total", total,
			"percent", (processed*100)/total,
		)
	}

	startTime := time.Now()
	written, errs := bw.db.ExecBatch(ctx, sql, rows, cfg)
	elapsed := time.Since(startTime)

	if len(errs) > 0 {
		bw.logger.Warn("batch_rows_failed",
			"op", name,
			"failed", len(errs),
			"written", written,
			"first_error", errs[0],
		)
	}

	if written == 0 && len(errs) > 0 {
		return 0, fmt.Errorf("batch %s: all %d rows failed: %w", name, len(rows), errs[0])
	}

	bw.logger.Info("batch_write_complete",
		"op", name,
		"rows", written,
		"elapsed", elapsed.String(),
		"rate", fmt.Sprintf("%.1f rows/s", float64(written)/elapsed.Seconds()),
	)

	return written, nil
}
