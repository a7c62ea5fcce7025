// Package observability persists operational telemetry — tool-call events
// and worker heartbeats — to a SQLite side database. Nothing here touches
// cached dataset contents; it records what the server did, not what it
// holds.
package observability

import "database/sql"

// Schema contains the complete DDL for the observability tables.
// Call Init(db) to apply it, or use this constant to embed in your own
// schema management.
const Schema = `
-- Tool Event Logs
CREATE TABLE IF NOT EXISTS tool_event_logs (
    event_id TEXT PRIMARY KEY,
    tool_name TEXT NOT NULL,
    dataset_id TEXT,
    dataset_kind TEXT,
    scope_id TEXT,
    item_count INTEGER,
    duration_ms INTEGER,
    success INTEGER NOT NULL DEFAULT 1,
    detail TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_tool_events_tool ON tool_event_logs(tool_name, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tool_events_dataset ON tool_event_logs(dataset_id);

-- Worker Heartbeats
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    worker_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    worker_pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    memory_sys_mb REAL,
    gc_count INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
