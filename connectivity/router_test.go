package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DUROUXG/MCP-OIE/dbopen"
	_ "modernc.org/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func TestRegisterLocalAndCall(t *testing.T) {
	r := New()
	called := false
	r.RegisterLocal("messages", func(ctx context.Context, payload []byte) ([]byte, error) {
		called = true
		return payload, nil
	})

	resp, err := r.Call(context.Background(), "messages", []byte(`{"path":"messages"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("local handler not called")
	}
	if string(resp) != `{"path":"messages"}` {
		t.Fatalf("got %q", resp)
	}
}

func TestCallConnectorNotFound(t *testing.T) {
	r := New()
	_, err := r.Call(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var cnf *ErrConnectorNotFound
	if !errors.As(err, &cnf) {
		t.Fatalf("expected ErrConnectorNotFound, got %T: %v", err, err)
	}
	if cnf.Connector != "nonexistent" {
		t.Fatalf("got connector %q, want %q", cnf.Connector, "nonexistent")
	}
}

func TestReloadLocalStrategy(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	localCalled := false
	r.RegisterLocal("events", func(ctx context.Context, payload []byte) ([]byte, error) {
		localCalled = true
		return []byte("ok"), nil
	})

	_, err := db.Exec(`INSERT INTO connector_routes (connector_name, strategy) VALUES ('events', 'local')`)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatalf("reload: %v", err)
	}

	resp, err := r.Call(context.Background(), "events", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !localCalled {
		t.Fatal("local handler not called for local strategy")
	}
	if string(resp) != "ok" {
		t.Fatalf("got %q", resp)
	}
}

func TestReloadNoopStrategy(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	r.RegisterLocal("disabled", func(ctx context.Context, payload []byte) ([]byte, error) {
		t.Fatal("local handler should not be called for noop")
		return nil, nil
	})

	_, err := db.Exec(`INSERT INTO connector_routes (connector_name, strategy) VALUES ('disabled', 'noop')`)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatalf("reload: %v", err)
	}

	resp, err := r.Call(context.Background(), "disabled", []byte("ignored"))
	if err != nil {
		t.Fatalf("noop call: %v", err)
	}
	if resp != nil {
		t.Fatalf("noop response: got %q, want nil", resp)
	}
}

func TestReloadBuildsRemoteHandler(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	var built atomic.Int32
	r.RegisterTransport("api", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		built.Add(1)
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte(endpoint), nil
		}, nil, nil
	})

	_, err := db.Exec(`INSERT INTO connector_routes (connector_name, strategy, endpoint)
		VALUES ('log-entries', 'api', 'https://api.example.com/v1')`)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatalf("reload: %v", err)
	}

	resp, err := r.Call(context.Background(), "log-entries", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "https://api.example.com/v1" {
		t.Fatalf("got %q", resp)
	}
	if built.Load() != 1 {
		t.Fatalf("factory calls: got %d, want 1", built.Load())
	}
}

func TestReloadReusesUnchangedRoutes(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	var built, closed atomic.Int32
	r.RegisterTransport("api", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		built.Add(1)
		return func(ctx context.Context, payload []byte) ([]byte, error) {
				return nil, nil
			}, func() {
				closed.Add(1)
			}, nil
	})

	_, err := db.Exec(`INSERT INTO connector_routes (connector_name, strategy, endpoint)
		VALUES ('messages', 'api', 'https://one.example.com')`)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	if built.Load() != 1 {
		t.Fatalf("factory calls after identical reload: got %d, want 1", built.Load())
	}
	if closed.Load() != 0 {
		t.Fatalf("closes after identical reload: got %d, want 0", closed.Load())
	}

	// Changing the endpoint rebuilds and closes the old handler.
	if _, err := db.Exec(`UPDATE connector_routes SET endpoint = 'https://two.example.com' WHERE connector_name = 'messages'`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	if built.Load() != 2 {
		t.Fatalf("factory calls after change: got %d, want 2", built.Load())
	}
	if closed.Load() != 1 {
		t.Fatalf("closes after change: got %d, want 1", closed.Load())
	}
}

func TestReloadRemovedRouteFallsBackToLocal(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	r.RegisterTransport("api", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte("remote"), nil
		}, nil, nil
	})
	r.RegisterLocal("events", func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte("local"), nil
	})

	ctx := context.Background()
	if _, err := db.Exec(`INSERT INTO connector_routes (connector_name, strategy, endpoint)
		VALUES ('events', 'api', 'https://api.example.com')`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	if resp, _ := r.Call(ctx, "events", nil); string(resp) != "remote" {
		t.Fatalf("before removal: got %q, want remote", resp)
	}

	if _, err := db.Exec(`DELETE FROM connector_routes WHERE connector_name = 'events'`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	if resp, _ := r.Call(ctx, "events", nil); string(resp) != "local" {
		t.Fatalf("after removal: got %q, want local", resp)
	}
}

func TestCloseShutsDownRemotes(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	var closed atomic.Int32
	r.RegisterTransport("api", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			return nil, nil
		}, func() { closed.Add(1) }, nil
	})

	if _, err := db.Exec(`INSERT INTO connector_routes (connector_name, strategy, endpoint)
		VALUES ('messages', 'api', 'https://api.example.com')`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if closed.Load() != 1 {
		t.Fatalf("closes: got %d, want 1", closed.Load())
	}
}

func TestAPIFactoryRequestShape(t *testing.T) {
	t.Setenv("TEST_API_TOKEN", "s3cret")

	var gotPath, gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		gotQuery = req.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	factory := APIFactory(nil)
	h, closeFn, err := factory(srv.URL+"/v1", json.RawMessage(`{"headers":{"Authorization":"Bearer ${TEST_API_TOKEN}"}}`))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer closeFn()

	payload, _ := json.Marshal(APIRequest{Path: "messages", Query: map[string]string{"page": "2"}})
	resp, err := h(context.Background(), payload)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != `{"items":[]}` {
		t.Fatalf("response: got %q", resp)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path: got %q, want /v1/messages", gotPath)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("auth header: got %q, want expanded token", gotAuth)
	}
	if gotQuery != "2" {
		t.Errorf("query: got %q, want 2", gotQuery)
	}
}

func TestAPIFactoryNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	factory := APIFactory(nil)
	h, closeFn, err := factory(srv.URL, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer closeFn()

	if _, err := h(context.Background(), []byte(`{"path":"events"}`)); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestAPIFactoryRejectsInvalidEndpoint(t *testing.T) {
	factory := APIFactory(nil)
	if _, _, err := factory("not a url", nil); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	now := time.Now()
	current := now
	cb := NewCircuitBreaker(
		WithBreakerThreshold(2),
		WithBreakerResetTimeout(time.Minute),
		WithBreakerHalfOpenMax(1),
		WithBreakerClock(func() time.Time { return current }),
	)

	failing := func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("boom")
	}
	wrapped := WithCircuitBreaker(cb, "messages")(failing)

	ctx := context.Background()
	wrapped(ctx, nil)
	wrapped(ctx, nil)

	if cb.State() != BreakerOpen {
		t.Fatalf("state after threshold: got %v, want open", cb.State())
	}

	_, err := wrapped(ctx, nil)
	var open *ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	// After the reset timeout a probe is allowed; success closes.
	current = now.Add(2 * time.Minute)
	ok := WithCircuitBreaker(cb, "messages")(func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte("ok"), nil
	})
	if _, err := ok(ctx, nil); err != nil {
		t.Fatalf("half-open probe: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state after probe success: got %v, want closed", cb.State())
	}
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, payload []byte) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	}

	wrapped := WithRetry(3, time.Millisecond, nil)(flaky)
	resp, err := wrapped(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "ok" {
		t.Fatalf("got %q", resp)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestWithRetryStopsOnOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	rejecting := func(ctx context.Context, payload []byte) ([]byte, error) {
		calls.Add(1)
		return nil, &ErrCircuitOpen{Connector: "events"}
	}

	wrapped := WithRetry(5, time.Millisecond, nil)(rejecting)
	if _, err := wrapped(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: got %d, want 1 (no retry on open circuit)", calls.Load())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, payload)
			}
		}
	}

	h := Chain(mw("outer"), mw("inner"))(func(ctx context.Context, payload []byte) ([]byte, error) {
		order = append(order, "base")
		return nil, nil
	})
	h(context.Background(), nil)

	want := []string{"outer", "inner", "base"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order: got %v, want %v", order, want)
		}
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	h := Recovery(testLogger())(func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("bad handler")
	})
	_, err := h(context.Background(), nil)
	var ep *ErrPanic
	if !errors.As(err, &ep) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestWatchPicksUpRouteChanges(t *testing.T) {
	// PRAGMA data_version only changes when a *different* connection writes,
	// so this uses a file database with separate writer and watcher handles.
	dbPath := filepath.Join(t.TempDir(), "watch_test.db")

	writerDB, err := dbopen.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { writerDB.Close() })
	if err := Init(writerDB); err != nil {
		t.Fatal(err)
	}

	watcherDB, err := dbopen.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { watcherDB.Close() })

	r := New()
	r.RegisterTransport("api", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte(endpoint), nil
		}, nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Watch(ctx, watcherDB, 10*time.Millisecond)
	}()

	if _, err := writerDB.Exec(`INSERT INTO connector_routes (connector_name, strategy, endpoint)
		VALUES ('connection-logs', 'api', 'https://api.example.com')`); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		resp, err := r.Call(ctx, "connection-logs", nil)
		if err == nil && string(resp) == "https://api.example.com" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("route never picked up: resp=%q err=%v", resp, err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
