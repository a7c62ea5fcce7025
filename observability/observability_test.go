package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DUROUXG/MCP-OIE/dbopen"
	_ "modernc.org/sqlite"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInitCreatesTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"tool_event_logs", "worker_heartbeats"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestLogTool(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)

	l.LogTool(context.Background(), ToolEvent{
		ToolName:    "oie_query_dataset",
		DatasetID:   "ds_abc",
		DatasetKind: "events",
		ItemCount:   42,
		Duration:    3 * time.Millisecond,
		Success:     true,
	})

	var tool, datasetID string
	var count int64
	var success bool
	err := db.QueryRow(`SELECT tool_name, dataset_id, item_count, success FROM tool_event_logs`).
		Scan(&tool, &datasetID, &count, &success)
	if err != nil {
		t.Fatalf("query event: %v", err)
	}
	if tool != "oie_query_dataset" || datasetID != "ds_abc" || count != 42 || !success {
		t.Fatalf("event row: got %s %s %d %v", tool, datasetID, count, success)
	}
}

func TestLogToolSurvivesBrokenStore(t *testing.T) {
	db := dbopen.OpenMemory(t) // schema never applied
	l := NewEventLogger(db)
	// Must not panic or block.
	l.LogTool(context.Background(), ToolEvent{ToolName: "oie_stats", Success: true})
}

func TestHeartbeatWriteAndLatest(t *testing.T) {
	db := setupObsDB(t)
	hw := NewHeartbeatWriter(db, "sweeper", time.Minute)

	if err := hw.WriteHeartbeat(); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}

	hs, err := LatestHeartbeat(context.Background(), db, "sweeper", time.Minute)
	if err != nil {
		t.Fatalf("latest heartbeat: %v", err)
	}
	if hs == nil {
		t.Fatal("heartbeat not found")
	}
	if !hs.Alive {
		t.Error("fresh heartbeat reported stale")
	}
	if hs.GoroutinesCount <= 0 {
		t.Errorf("goroutines: got %d", hs.GoroutinesCount)
	}
}

func TestLatestHeartbeatNoRows(t *testing.T) {
	db := setupObsDB(t)
	hs, err := LatestHeartbeat(context.Background(), db, "ghost", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hs != nil {
		t.Fatalf("got %+v, want nil", hs)
	}
}

func TestCleanupRetention(t *testing.T) {
	db := setupObsDB(t)

	old := time.Now().AddDate(0, 0, -30).Unix()
	if _, err := db.Exec(`INSERT INTO tool_event_logs (event_id, tool_name, created_at) VALUES ('evt_old', 'oie_stats', ?)`, old); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO tool_event_logs (event_id, tool_name) VALUES ('evt_new', 'oie_stats')`); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(context.Background(), db, RetentionConfig{ToolEventsDays: 7}); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	var remaining int
	db.QueryRow(`SELECT COUNT(*) FROM tool_event_logs`).Scan(&remaining)
	if remaining != 1 {
		t.Fatalf("remaining events: got %d, want 1", remaining)
	}
}

func TestHeartbeatWriterStartStop(t *testing.T) {
	db := setupObsDB(t)
	hw := NewHeartbeatWriter(db, "sweeper", 5*time.Millisecond)
	hw.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	hw.Stop()

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM worker_heartbeats WHERE worker_name = 'sweeper'`).Scan(&count)
	if count < 1 {
		t.Fatalf("heartbeats written: got %d, want >= 1", count)
	}
}
