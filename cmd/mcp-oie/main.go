// Entry point for the MCP OIE server: dataset cache over stdio MCP, with a
// small chi admin listener for health and cache inspection.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/DUROUXG/MCP-OIE/connectivity"
	"github.com/DUROUXG/MCP-OIE/dataset"
	"github.com/DUROUXG/MCP-OIE/dbopen"
	"github.com/DUROUXG/MCP-OIE/observability"
	"github.com/DUROUXG/MCP-OIE/oie"
)

func main() {
	configPath := env("OIE_CONFIG", "")
	adminAddr := env("OIE_ADMIN_ADDR", ":8086")
	logLevel := env("LOG_LEVEL", "info")

	// Logging. MCP owns stdout, so logs go to stderr.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Config.
	var cfg *oie.Config
	if configPath != "" {
		var err error
		cfg, err = oie.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
	} else {
		cfg = oie.DefaultConfig()
		cfg.RoutesDBPath = env("OIE_ROUTES_DB", cfg.RoutesDBPath)
		cfg.EventsDBPath = env("OIE_EVENTS_DB", cfg.EventsDBPath)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Routes DB — drives connector dispatch, hot-reloaded by the watcher.
	routesDB, err := dbopen.Open(cfg.RoutesDBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("routes db", "error", err)
		os.Exit(1)
	}
	defer routesDB.Close()
	if err := connectivity.Init(routesDB); err != nil {
		slog.Error("init routes schema", "error", err)
		os.Exit(1)
	}

	// Events DB — tool events and sweeper heartbeats.
	eventsDB, err := dbopen.Open(cfg.EventsDBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("events db", "error", err)
		os.Exit(1)
	}
	defer eventsDB.Close()
	if err := observability.Init(eventsDB); err != nil {
		slog.Error("init events schema", "error", err)
		os.Exit(1)
	}
	events := observability.NewEventLogger(eventsDB)

	// Connectivity router with the API transport.
	router := connectivity.New(connectivity.WithLogger(logger))
	router.RegisterTransport("api", connectivity.APIFactory(nil))
	defer router.Close()
	go router.Watch(ctx, routesDB, cfg.Fetch.WatchInterval)

	// Service.
	svc := oie.New(cfg,
		oie.WithRouter(router),
		oie.WithEvents(events),
		oie.WithLogger(logger),
	)
	svc.Start()
	defer svc.Close()

	// Sweeper heartbeat so operators can tell a quiet server from a dead one.
	hb := observability.NewHeartbeatWriter(eventsDB, "oie-sweeper", 15*time.Second)
	hb.Start(ctx)
	defer hb.Stop()

	// Admin listener.
	if adminAddr != "" {
		go runAdmin(ctx, adminAddr, svc, eventsDB)
	}

	// MCP server on stdio.
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "mcp-oie",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)

	slog.Info("mcp-oie starting", "transport", "stdio", "admin", adminAddr)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("mcp server", "error", err)
		os.Exit(1)
	}
	slog.Info("mcp-oie stopped")
}

// runAdmin serves health and cache inspection endpoints until ctx is done.
func runAdmin(ctx context.Context, addr string, svc *oie.Service, eventsDB *sql.DB) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/admin/datasets", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, svc.List(req.Context()))
	})

	r.Get("/admin/datasets/{id}", func(w http.ResponseWriter, req *http.Request) {
		meta, err := svc.Metadata(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, dataset.ErrDatasetNotFound) {
				writeError(w, 404, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, meta)
	})

	r.Delete("/admin/datasets/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.Delete(req.Context(), chi.URLParam(req, "id")); err != nil {
			writeError(w, 404, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "deleted"})
	})

	r.Get("/admin/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, svc.Stats(req.Context()))
	})

	r.Get("/admin/heartbeat", func(w http.ResponseWriter, req *http.Request) {
		hs, err := observability.LatestHeartbeat(req.Context(), eventsDB, "oie-sweeper", 45*time.Second)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if hs == nil {
			writeError(w, 404, errors.New("no heartbeat recorded"))
			return
		}
		writeJSON(w, 200, hs)
	})

	httpSrv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("admin listener starting", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("admin listener", "error", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
