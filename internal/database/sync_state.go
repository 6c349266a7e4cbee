package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"activity-sync/internal/metrics"
)

// Keys in the sync_state table
const (
	keyWatermark    = "watermark"
	keySyncEnabled  = "sync_enabled"
	keySessionToken = "session_token"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func setState(ctx context.Context, q querier, key, value string) error {
	query := `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query, key, value, time.Now().Unix())
	return err
}

func parseWatermark(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid watermark %q: %w", value, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// GetWatermark returns the upper bound of the last fully handled sync window.
// Returns (nil, nil) if no watermark has been recorded yet.
func (db *DB) GetWatermark(ctx context.Context) (*time.Time, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetWatermark))
	defer timer.ObserveDuration()

	wm, err := getWatermark(ctx, db.conn)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetWatermark).Inc()
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}
	return wm, nil
}

func getWatermark(ctx context.Context, q querier) (*time.Time, error) {
	value, ok, err := getState(ctx, q, keyWatermark)
	if err != nil || !ok {
		return nil, err
	}
	wm, err := parseWatermark(value)
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

// SetWatermark records t as the watermark unless the stored value is already later.
// The watermark never moves backwards. Returns the watermark now in effect.
func (db *DB) SetWatermark(ctx context.Context, t time.Time) (time.Time, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSetWatermark))
	defer timer.ObserveDuration()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetWatermark).Inc()
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	effective, err := advanceWatermark(ctx, tx, t)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetWatermark).Inc()
		return time.Time{}, fmt.Errorf("failed to set watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetWatermark).Inc()
		return time.Time{}, fmt.Errorf("failed to commit watermark: %w", err)
	}

	metrics.WatermarkTimestamp.Set(float64(effective.Unix()))
	return effective, nil
}

// advanceWatermark writes max(current, t) within q
func advanceWatermark(ctx context.Context, q querier, t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Millisecond)

	current, err := getWatermark(ctx, q)
	if err != nil {
		return time.Time{}, err
	}
	if current != nil && !t.After(*current) {
		return *current, nil
	}

	if err := setState(ctx, q, keyWatermark, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// IsSyncEnabled reports whether automatic sync is enabled. Defaults to true when unset.
func (db *DB) IsSyncEnabled(ctx context.Context) (bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSyncEnabled))
	defer timer.ObserveDuration()

	value, ok, err := getState(ctx, db.conn, keySyncEnabled)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncEnabled).Inc()
		return true, fmt.Errorf("failed to get sync enabled flag: %w", err)
	}
	if !ok {
		return true, nil
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncEnabled).Inc()
		return true, fmt.Errorf("invalid sync enabled flag %q: %w", value, err)
	}
	return enabled, nil
}

// SetSyncEnabled persists the sync-enabled flag
func (db *DB) SetSyncEnabled(ctx context.Context, enabled bool) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSetSyncEnabled))
	defer timer.ObserveDuration()

	if err := setState(ctx, db.conn, keySyncEnabled, strconv.FormatBool(enabled)); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetSyncEnabled).Inc()
		return fmt.Errorf("failed to set sync enabled flag: %w", err)
	}
	return nil
}

// GetSessionToken returns the stored session token, or "" if none
func (db *DB) GetSessionToken(ctx context.Context) (string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSessionToken))
	defer timer.ObserveDuration()

	value, _, err := getState(ctx, db.conn, keySessionToken)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSessionToken).Inc()
		return "", fmt.Errorf("failed to get session token: %w", err)
	}
	return value, nil
}

// SetSessionToken stores the session token
func (db *DB) SetSessionToken(ctx context.Context, token string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSetSessionToken))
	defer timer.ObserveDuration()

	if err := setState(ctx, db.conn, keySessionToken, token); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetSessionToken).Inc()
		return fmt.Errorf("failed to set session token: %w", err)
	}
	return nil
}

// ClearSessionToken removes the stored session token
func (db *DB) ClearSessionToken(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSetSessionToken))
	defer timer.ObserveDuration()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sync_state WHERE key = ?`, keySessionToken); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetSessionToken).Inc()
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}
