// Package oie exposes a time-bounded dataset cache over integration
// platform data. Fetch operations pull items from upstream connectors,
// normalize them, and park them in memory under a dataset handle; query
// operations let an agent page through the parked data without re-reading
// the upstream API.
package oie

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DUROUXG/MCP-OIE/connectivity"
	"github.com/DUROUXG/MCP-OIE/dataset"
	"github.com/DUROUXG/MCP-OIE/kit"
	"github.com/DUROUXG/MCP-OIE/observability"
)

// Scope tags a fetched dataset with the upstream object it was pulled for
// (a connection, an environment, a worker group).
type Scope struct {
	ID   string
	Name string
}

// Service is the main orchestrator: it owns the dataset store and the
// upstream client, and wraps every operation with event logging.
type Service struct {
	store  *dataset.Store
	client *Client
	router *connectivity.Router
	events *observability.EventLogger
	logger *slog.Logger
	config *Config
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithRouter sets the connectivity router used for upstream fetches.
func WithRouter(r *connectivity.Router) ServiceOption {
	return func(svc *Service) { svc.router = r }
}

// WithEvents sets the observability event logger for tool operations.
func WithEvents(l *observability.EventLogger) ServiceOption {
	return func(svc *Service) { svc.events = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) { svc.logger = l }
}

// WithStore replaces the dataset store, typically to inject a test clock.
func WithStore(s *dataset.Store) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// New creates a Service. A nil config uses defaults.
func New(cfg *Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()

	svc := &Service{
		logger: slog.Default(),
		config: cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.store == nil {
		svc.store = dataset.New(
			dataset.WithLogger(svc.logger),
			dataset.WithDefaultTTL(cfg.Dataset.TTL),
			dataset.WithSweepInterval(cfg.Dataset.SweepInterval),
		)
	}
	svc.client = NewClient(svc.router, cfg.Fetch, svc.logger)

	return svc
}

// Start launches the background eviction sweeper.
func (svc *Service) Start() {
	svc.store.Start()
}

// Close stops the sweeper and drops all cached datasets. The router is
// owned by the caller and is not closed here.
func (svc *Service) Close() error {
	return svc.store.Close()
}

// Store exposes the underlying dataset store, mainly for tests.
func (svc *Service) Store() *dataset.Store {
	return svc.store
}

// Fetch pulls all items of the given kind from the upstream connector,
// normalizes them and caches them as a new dataset. Extra query parameters
// pass through to the upstream API.
func (svc *Service) Fetch(ctx context.Context, kind string, scope Scope, extra map[string]string, ttl time.Duration) (*dataset.Metadata, error) {
	start := time.Now()

	spec, ok := SpecForKind(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	raw, err := svc.client.FetchAll(ctx, spec, scope.ID, extra)
	if err != nil {
		svc.logEvent(ctx, observability.ToolEvent{
			DatasetKind: kind,
			ScopeID:     scope.ID,
			Duration:    time.Since(start),
			Success:     false,
		})
		return nil, err
	}

	meta := svc.store.Store(kind, raw, &dataset.StoreOptions{
		ScopeID:       scope.ID,
		ScopeName:     scope.Name,
		TTL:           ttl,
		IdentityField: spec.IdentityField,
	})

	svc.logger.InfoContext(ctx, "dataset fetched",
		"dataset_id", meta.ID, "kind", kind, "items", meta.TotalCount,
		"scope_id", scope.ID, "duration_ms", time.Since(start).Milliseconds())

	svc.logEvent(ctx, observability.ToolEvent{
		DatasetID:   meta.ID,
		DatasetKind: kind,
		ScopeID:     scope.ID,
		ItemCount:   meta.TotalCount,
		Duration:    time.Since(start),
		Success:     true,
	})
	return meta, nil
}

// Ingest caches pre-fetched raw items directly, bypassing the upstream
// client. Used when the caller already holds an API response.
func (svc *Service) Ingest(ctx context.Context, kind string, raw []any, opts *dataset.StoreOptions) *dataset.Metadata {
	start := time.Now()
	meta := svc.store.Store(kind, raw, opts)
	svc.logEvent(ctx, observability.ToolEvent{
		DatasetID:   meta.ID,
		DatasetKind: kind,
		ItemCount:   meta.TotalCount,
		Duration:    time.Since(start),
		Success:     true,
	})
	return meta
}

// Query runs the filter/search/sort/paginate pipeline against a cached
// dataset.
func (svc *Service) Query(ctx context.Context, req *dataset.QueryRequest) (*dataset.Page, error) {
	start := time.Now()
	if req.DatasetID == "" {
		return nil, ErrEmptyDatasetID
	}
	page, err := svc.store.Query(req)
	svc.logEvent(ctx, observability.ToolEvent{
		DatasetID: req.DatasetID,
		ItemCount: pageCount(page),
		Duration:  time.Since(start),
		Success:   err == nil,
	})
	return page, err
}

// GetItem returns one item from a cached dataset by its identity value.
func (svc *Service) GetItem(ctx context.Context, datasetID string, itemID any) (dataset.Record, error) {
	start := time.Now()
	if datasetID == "" {
		return nil, ErrEmptyDatasetID
	}
	rec, err := svc.store.GetItem(datasetID, itemID)
	svc.logEvent(ctx, observability.ToolEvent{
		DatasetID: datasetID,
		Duration:  time.Since(start),
		Success:   err == nil,
	})
	return rec, err
}

// List returns metadata for all live datasets, newest first.
func (svc *Service) List(ctx context.Context) []*dataset.Metadata {
	return svc.store.List()
}

// Metadata returns the metadata of one dataset.
func (svc *Service) Metadata(ctx context.Context, datasetID string) (*dataset.Metadata, error) {
	if datasetID == "" {
		return nil, ErrEmptyDatasetID
	}
	meta := svc.store.Metadata(datasetID)
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", dataset.ErrDatasetNotFound, datasetID)
	}
	return meta, nil
}

// Delete evicts a dataset before its TTL.
func (svc *Service) Delete(ctx context.Context, datasetID string) error {
	start := time.Now()
	if datasetID == "" {
		return ErrEmptyDatasetID
	}
	ok := svc.store.Delete(datasetID)
	svc.logEvent(ctx, observability.ToolEvent{
		DatasetID: datasetID,
		Duration:  time.Since(start),
		Success:   ok,
	})
	if !ok {
		return fmt.Errorf("%w: %s", dataset.ErrDatasetNotFound, datasetID)
	}
	return nil
}

// Stats reports cache occupancy.
func (svc *Service) Stats(ctx context.Context) *dataset.Stats {
	return svc.store.Stats()
}

func (svc *Service) logEvent(ctx context.Context, ev observability.ToolEvent) {
	if svc.events == nil {
		return
	}
	ev.ToolName = kit.GetToolName(ctx)
	svc.events.LogTool(ctx, ev)
}

func pageCount(p *dataset.Page) int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}
