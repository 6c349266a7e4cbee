package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Sync state: scalar keys owned by the engine (watermark, sync_enabled, session_token)
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Retry queue: activities whose submission failed, in arrival order
CREATE TABLE IF NOT EXISTS retry_queue (
    position INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Identity of the activity (external ID or fingerprint)
    activity_key TEXT NOT NULL,
    activity_json TEXT NOT NULL,

    -- Retry tracking
    attempts INTEGER NOT NULL DEFAULT 1,
    last_error TEXT,

    -- Metadata
    enqueued_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Synced IDs: activity identifiers known to have reached the backend
CREATE TABLE IF NOT EXISTS synced_ids (
    activity_id TEXT PRIMARY KEY,
    origin TEXT NOT NULL,  -- incremental, backfill or reconcile
    synced_at INTEGER NOT NULL
);

-- Cached activities: last device listing shown by the UI
CREATE TABLE IF NOT EXISTS cached_activities (
    position INTEGER PRIMARY KEY,
    activity_key TEXT NOT NULL,
    activity_json TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    cached_at INTEGER NOT NULL
);

-- One queue row per activity
CREATE UNIQUE INDEX IF NOT EXISTS idx_retry_queue_activity_key ON retry_queue(activity_key);

CREATE INDEX IF NOT EXISTS idx_synced_ids_origin ON synced_ids(origin);
CREATE INDEX IF NOT EXISTS idx_cached_activities_start ON cached_activities(start_time DESC);
`
