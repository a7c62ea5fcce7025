package oie

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DUROUXG/MCP-OIE/dataset"
	"github.com/DUROUXG/MCP-OIE/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all oie tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerFetch(srv, dataset.KindMessages, "oie_fetch_messages",
		"Fetch messages from the integration platform and cache them as a queryable dataset")
	svc.registerFetch(srv, dataset.KindLogEntries, "oie_fetch_log_entries",
		"Fetch log entries from the integration platform and cache them as a queryable dataset")
	svc.registerFetch(srv, dataset.KindConnectionLogs, "oie_fetch_connection_logs",
		"Fetch connection logs from the integration platform and cache them as a queryable dataset")
	svc.registerFetch(srv, dataset.KindEvents, "oie_fetch_events",
		"Fetch events from the integration platform and cache them as a queryable dataset")
	svc.registerQuery(srv)
	svc.registerGetItem(srv)
	svc.registerListDatasets(srv)
	svc.registerMetadata(srv)
	svc.registerDelete(srv)
	svc.registerStats(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- Fetch ---

func (svc *Service) registerFetch(srv *mcp.Server, kind, name, description string) {
	type req struct {
		ScopeID    string            `json:"scope_id"`
		ScopeName  string            `json:"scope_name"`
		TTLMinutes int               `json:"ttl_minutes"`
		Query      map[string]string `json:"query"`
	}

	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema(map[string]any{
			"scope_id":    map[string]any{"type": "string", "description": "Upstream object the data belongs to (connection, environment, worker group)"},
			"scope_name":  map[string]any{"type": "string", "description": "Human-readable scope name"},
			"ttl_minutes": map[string]any{"type": "integer", "description": "Dataset lifetime in minutes (default 30)"},
			"query":       map[string]any{"type": "object", "description": "Extra query parameters forwarded to the upstream API"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		ttl := time.Duration(p.TTLMinutes) * time.Minute
		return svc.Fetch(ctx, kind, Scope{ID: p.ScopeID, Name: p.ScopeName}, p.Query, ttl)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- Query ---

func (svc *Service) registerQuery(srv *mcp.Server) {
	type req struct {
		DatasetID string         `json:"dataset_id"`
		IDs       []any          `json:"ids"`
		Filters   map[string]any `json:"filters"`
		Search    string         `json:"search"`
		SortBy    string         `json:"sort_by"`
		SortOrder string         `json:"sort_order"`
		Page      int            `json:"page"`
		PageSize  int            `json:"page_size"`
	}

	tool := &mcp.Tool{
		Name:        "oie_query_dataset",
		Description: "Filter, search, sort and paginate a cached dataset",
		InputSchema: inputSchema(map[string]any{
			"dataset_id": map[string]any{"type": "string", "description": "Dataset handle from a fetch tool"},
			"ids":        map[string]any{"type": "array", "description": "Keep only items with these identity values"},
			"filters":    map[string]any{"type": "object", "description": "Field filters, ANDed; text filters match substrings case-insensitively"},
			"search":     map[string]any{"type": "string", "description": "Free-text search across all fields"},
			"sort_by":    map[string]any{"type": "string", "description": "Field to sort by"},
			"sort_order": map[string]any{"type": "string", "description": "asc or desc (default desc)"},
			"page":       map[string]any{"type": "integer", "description": "Page number, 1-based"},
			"page_size":  map[string]any{"type": "integer", "description": "Items per page (max 100, default 50)"},
		}, []string{"dataset_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.Query(ctx, &dataset.QueryRequest{
			DatasetID: p.DatasetID,
			IDs:       p.IDs,
			Filters:   p.Filters,
			Search:    p.Search,
			SortBy:    p.SortBy,
			SortOrder: p.SortOrder,
			Page:      p.Page,
			PageSize:  p.PageSize,
		})
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- Point lookup ---

func (svc *Service) registerGetItem(srv *mcp.Server) {
	type req struct {
		DatasetID string `json:"dataset_id"`
		ItemID    any    `json:"item_id"`
	}

	tool := &mcp.Tool{
		Name:        "oie_get_item",
		Description: "Return one item from a cached dataset by its identity value",
		InputSchema: inputSchema(map[string]any{
			"dataset_id": map[string]any{"type": "string", "description": "Dataset handle"},
			"item_id":    map[string]any{"description": "Identity value; number and string forms are equivalent"},
		}, []string{"dataset_id", "item_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.GetItem(ctx, p.DatasetID, p.ItemID)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- Lifecycle ---

func (svc *Service) registerListDatasets(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "oie_list_datasets",
		Description: "List all live cached datasets, newest first",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.List(ctx), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerMetadata(srv *mcp.Server) {
	type req struct {
		DatasetID string `json:"dataset_id"`
	}

	tool := &mcp.Tool{
		Name:        "oie_dataset_metadata",
		Description: "Return the metadata and summary of a cached dataset",
		InputSchema: inputSchema(map[string]any{
			"dataset_id": map[string]any{"type": "string", "description": "Dataset handle"},
		}, []string{"dataset_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.Metadata(ctx, p.DatasetID)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerDelete(srv *mcp.Server) {
	type req struct {
		DatasetID string `json:"dataset_id"`
	}

	tool := &mcp.Tool{
		Name:        "oie_delete_dataset",
		Description: "Evict a cached dataset before its TTL",
		InputSchema: inputSchema(map[string]any{
			"dataset_id": map[string]any{"type": "string", "description": "Dataset handle"},
		}, []string{"dataset_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.Delete(ctx, p.DatasetID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted", "dataset_id": p.DatasetID}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerStats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "oie_stats",
		Description: "Report cache occupancy: dataset count, item count, breakdown by kind",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.Stats(ctx), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
