package database

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"activity-sync/internal/metrics"
)

// Origins recorded alongside synced identifiers
const (
	OriginIncremental = "incremental"
	OriginBackfill    = "backfill"
	OriginReconcile   = "reconcile"
)

// GetSyncedIDs returns every identifier known to have reached the backend
func (db *DB) GetSyncedIDs(ctx context.Context) (map[string]struct{}, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSyncedIDs))
	defer timer.ObserveDuration()

	rows, err := db.conn.QueryContext(ctx, `SELECT activity_id FROM synced_ids`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncedIDs).Inc()
		return nil, fmt.Errorf("failed to query synced ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncedIDs).Inc()
			return nil, fmt.Errorf("failed to scan synced id: %w", err)
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncedIDs).Inc()
		return nil, fmt.Errorf("error iterating synced ids: %w", err)
	}

	return ids, nil
}

// AddSyncedIDs records identifiers as synced. Existing identifiers are left untouched.
func (db *DB) AddSyncedIDs(ctx context.Context, origin string, ids ...string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpAddSyncedIDs))
	defer timer.ObserveDuration()

	if len(ids) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAddSyncedIDs).Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO synced_ids (activity_id, origin, synced_at) VALUES (?, ?, ?)`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAddSyncedIDs).Inc()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, id, origin, now); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAddSyncedIDs).Inc()
			return fmt.Errorf("failed to add synced id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAddSyncedIDs).Inc()
		return fmt.Errorf("failed to commit synced ids: %w", err)
	}

	return nil
}

// CountSyncedIDs returns the number of synced identifiers
func (db *DB) CountSyncedIDs(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCountSyncedIDs))
	defer timer.ObserveDuration()

	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM synced_ids`).Scan(&count); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCountSyncedIDs).Inc()
		return 0, fmt.Errorf("failed to count synced ids: %w", err)
	}
	return count, nil
}
