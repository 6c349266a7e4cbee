package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"activity-sync/internal/metrics"
)

// DB wraps the SQLite database connection that backs the local store
type DB struct {
	conn *sql.DB
}

// Open opens a connection to the SQLite database at the specified path
// and makes sure the schema exists
func Open(path string) (*DB, error) {
	// Open the database with appropriate pragmas
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(1) // SQLite works best with a single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	// Test the connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.Init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Init initializes the database schema by creating all tables and indexes
func (db *DB) Init() error {
	_, err := db.conn.Exec(Schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Health checks if the database connection is healthy
func (db *DB) Health() error {
	return db.conn.Ping()
}

// Wipe clears every key the engine owns: watermark, retry queue, synced IDs,
// cached activities, the sync-enabled flag and the session token
func (db *DB) Wipe(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpWipe))
	defer timer.ObserveDuration()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpWipe).Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sync_state", "retry_queue", "synced_ids", "cached_activities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpWipe).Inc()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpWipe).Inc()
		return fmt.Errorf("failed to commit wipe: %w", err)
	}

	return nil
}
