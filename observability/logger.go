package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/DUROUXG/MCP-OIE/idgen"
)

// ToolEvent describes one tool invocation to record.
type ToolEvent struct {
	ToolName    string
	DatasetID   string
	DatasetKind string
	ScopeID     string
	ItemCount   int
	Duration    time.Duration
	Success     bool
	Detail      string // optional JSON
}

// EventLogger writes tool events and manages retention cleanup.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogTool records a tool invocation. Non-blocking: errors are logged via
// slog but do not propagate, so a failing observability store never blocks
// a tool call.
func (l *EventLogger) LogTool(ctx context.Context, event ToolEvent) {
	eventID := l.newID()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO tool_event_logs (
			event_id, tool_name, dataset_id, dataset_kind, scope_id,
			item_count, duration_ms, success, detail, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		eventID, event.ToolName, event.DatasetID, event.DatasetKind, event.ScopeID,
		event.ItemCount, event.Duration.Milliseconds(), event.Success, event.Detail,
		time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "tool", event.ToolName)
	}
}

// RetentionConfig specifies per-table retention in days. Zero means no
// cleanup for that table.
type RetentionConfig struct {
	ToolEventsDays int
	HeartbeatsDays int
	RunVacuumAfter bool
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()

	type cleanupTarget struct {
		table  string
		column string
		days   int
	}
	targets := []cleanupTarget{
		{"tool_event_logs", "created_at", cfg.ToolEventsDays},
		{"worker_heartbeats", "timestamp", cfg.HeartbeatsDays},
	}

	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days*86400)
		q := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.table, t.column)
		if _, err := db.ExecContext(ctx, q, cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", t.table, err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
