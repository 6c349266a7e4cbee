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

// GetCachedActivities returns the last device listing in the order it was stored.
// Rows that no longer decode are dropped from the result.
func (db *DB) GetCachedActivities(ctx context.Context) ([]activity.NormalizedActivity, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetCachedActivities))
	defer timer.ObserveDuration()

	rows, err := db.conn.QueryContext(ctx, `SELECT activity_json FROM cached_activities ORDER BY position ASC`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetCachedActivities).Inc()
		return nil, fmt.Errorf("failed to query cached activities: %w", err)
	}
	defer rows.Close()

	activities := []activity.NormalizedActivity{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetCachedActivities).Inc()
			return nil, fmt.Errorf("failed to scan cached activity: %w", err)
		}

		var a activity.NormalizedActivity
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			continue
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetCachedActivities).Inc()
		return nil, fmt.Errorf("error iterating cached activities: %w", err)
	}

	return activities, nil
}

// SetCachedActivities replaces the cached device listing
func (db *DB) SetCachedActivities(ctx context.Context, activities []activity.NormalizedActivity) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSetCachedActivities))
	defer timer.ObserveDuration()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetCachedActivities).Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_activities`); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetCachedActivities).Inc()
		return fmt.Errorf("failed to clear cached activities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cached_activities (position, activity_key, activity_json, start_time, cached_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetCachedActivities).Inc()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := range activities {
		data, err := json.Marshal(&activities[i])
		if err != nil {
			return fmt.Errorf("failed to marshal activity: %w", err)
		}
		_, err = stmt.ExecContext(ctx, i, activities[i].Key(), string(data), activities[i].StartTime.UnixMilli(), now)
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetCachedActivities).Inc()
			return fmt.Errorf("failed to cache activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetCachedActivities).Inc()
		return fmt.Errorf("failed to commit cached activities: %w", err)
	}

	return nil
}
