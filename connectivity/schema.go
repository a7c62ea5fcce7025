package connectivity

import (
	"database/sql"

	"github.com/DUROUXG/MCP-OIE/dbopen"
)

// Schema defines the connector_routes table that drives the router.
// Each row maps a connector name (messages, log-entries, connection-logs,
// events) to a dispatch strategy.
//
// Strategies:
//   - "local": dispatch to an in-process Handler registered via RegisterLocal.
//   - "api":   dispatch via the HTTP API transport factory.
//   - "noop":  silently succeed without doing anything (connector disabled).
//
// The config column holds per-route JSON (timeouts, headers, retry policy).
// Any write to this table bumps PRAGMA data_version, which the Watch loop
// detects to trigger a hot-reload.
const Schema = `
CREATE TABLE IF NOT EXISTS connector_routes (
    connector_name TEXT PRIMARY KEY,
    strategy       TEXT NOT NULL CHECK(strategy IN ('local', 'api', 'noop')),
    endpoint       TEXT,
    config         TEXT DEFAULT '{}',
    updated_at     INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_connector_routes_strategy ON connector_routes(strategy);

CREATE TRIGGER IF NOT EXISTS trg_connector_routes_updated_at
AFTER UPDATE ON connector_routes
FOR EACH ROW
BEGIN
    UPDATE connector_routes SET updated_at = strftime('%s', 'now') WHERE connector_name = NEW.connector_name;
END;
`

// OpenDB opens the routes database at path with WAL and a 5s busy timeout.
// Use this instead of sql.Open for any database shared between admin
// writes, Router.Reload reads, and Watch polling.
func OpenDB(path string) (*sql.DB, error) {
	return dbopen.Open(path, dbopen.WithBusyTimeout(5000))
}

// Init creates the connector_routes table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
