package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"activity-sync/internal/activity"
	"activity-sync/internal/metrics"
)

// QueuedActivity is an activity waiting in the retry queue
type QueuedActivity struct {
	Position   int64
	Activity   activity.NormalizedActivity
	Attempts   int
	LastError  *string
	EnqueuedAt time.Time
}

// RetryQueue is a snapshot of the retry queue.
// MaxPosition covers every row read, including rows that could not be decoded,
// so committing up to it clears exactly what this snapshot saw.
type RetryQueue struct {
	Items       []QueuedActivity
	MaxPosition int64
	Corrupt     int
}

// Activities returns the queued activities in arrival order
func (q *RetryQueue) Activities() []activity.NormalizedActivity {
	out := make([]activity.NormalizedActivity, len(q.Items))
	for i := range q.Items {
		out[i] = q.Items[i].Activity
	}
	return out
}

// GetQueue returns all queued activities, oldest first
func (db *DB) GetQueue(ctx context.Context) (*RetryQueue, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetQueue))
	defer timer.ObserveDuration()

	query := `
		SELECT position, activity_json, attempts, last_error, enqueued_at
		FROM retry_queue
		ORDER BY position ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetQueue).Inc()
		return nil, fmt.Errorf("failed to query retry queue: %w", err)
	}
	defer rows.Close()

	queue := &RetryQueue{}
	for rows.Next() {
		var item QueuedActivity
		var data string
		var enqueuedAt int64

		if err := rows.Scan(&item.Position, &data, &item.Attempts, &item.LastError, &enqueuedAt); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetQueue).Inc()
			return nil, fmt.Errorf("failed to scan queued activity: %w", err)
		}

		queue.MaxPosition = item.Position
		if err := json.Unmarshal([]byte(data), &item.Activity); err != nil {
			queue.Corrupt++
			continue
		}
		item.EnqueuedAt = time.Unix(enqueuedAt, 0)
		queue.Items = append(queue.Items, item)
	}

	if err := rows.Err(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetQueue).Inc()
		return nil, fmt.Errorf("error iterating retry queue: %w", err)
	}

	return queue, nil
}

// AppendToQueue adds activities to the end of the retry queue.
// Activities already queued keep their position and have their attempt count bumped.
func (db *DB) AppendToQueue(ctx context.Context, activities []activity.NormalizedActivity, errMsg string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpAppendQueue))
	defer timer.ObserveDuration()

	if len(activities) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAppendQueue).Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO retry_queue (activity_key, activity_json, last_error, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(activity_key) DO UPDATE SET
			attempts = attempts + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAppendQueue).Inc()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}
	now := time.Now().Unix()

	for i := range activities {
		data, err := json.Marshal(&activities[i])
		if err != nil {
			return fmt.Errorf("failed to marshal activity: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, activities[i].Key(), string(data), lastError, now, now); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAppendQueue).Inc()
			return fmt.Errorf("failed to enqueue activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAppendQueue).Inc()
		return fmt.Errorf("failed to commit retry queue: %w", err)
	}

	return nil
}

// CommitSync records a successful submission in a single transaction:
// the watermark advances to max(current, watermark) and queue rows up to
// and including upToPosition are removed. Rows appended after the snapshot
// was taken survive. Returns the watermark now in effect.
func (db *DB) CommitSync(ctx context.Context, watermark time.Time, upToPosition int64) (time.Time, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCommitSync))
	defer timer.ObserveDuration()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCommitSync).Inc()
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	effective, err := advanceWatermark(ctx, tx, watermark)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCommitSync).Inc()
		return time.Time{}, fmt.Errorf("failed to advance watermark: %w", err)
	}

	if upToPosition > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM retry_queue WHERE position <= ?`, upToPosition); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCommitSync).Inc()
			return time.Time{}, fmt.Errorf("failed to clear retry queue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCommitSync).Inc()
		return time.Time{}, fmt.Errorf("failed to commit sync: %w", err)
	}

	metrics.WatermarkTimestamp.Set(float64(effective.Unix()))
	return effective, nil
}

// GetQueueLength returns the number of activities in the retry queue
func (db *DB) GetQueueLength(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetQueueLength))
	defer timer.ObserveDuration()

	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM retry_queue`).Scan(&count); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetQueueLength).Inc()
		return 0, fmt.Errorf("failed to get retry queue length: %w", err)
	}
	return count, nil
}
