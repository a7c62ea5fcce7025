package oie

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/DUROUXG/MCP-OIE/connectivity"
)

// Client pulls paginated item lists from upstream connectors through the
// connectivity router. It accumulates pages until the upstream returns a
// short page, an empty page, or the page cap is reached.
type Client struct {
	router   *connectivity.Router
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// NewClient creates a Client. A nil router makes every fetch fail with
// ErrFetchFailed, which is useful for store-only deployments.
func NewClient(router *connectivity.Router, cfg FetchConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		router:   router,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger,
	}
}

// FetchAll retrieves every page of items for the given connector spec.
// Extra query parameters (date windows, status filters) pass through to
// the upstream API unchanged.
func (c *Client) FetchAll(ctx context.Context, spec ConnectorSpec, scopeID string, extra map[string]string) ([]any, error) {
	if c.router == nil {
		return nil, fmt.Errorf("%w: no router configured", ErrFetchFailed)
	}

	var all []any
	for page := 1; page <= c.maxPages; page++ {
		query := map[string]string{
			"pageNumber": strconv.Itoa(page),
			"pageSize":   strconv.Itoa(c.pageSize),
		}
		for k, v := range extra {
			query[k] = v
		}
		if spec.ScopeParam != "" && scopeID != "" {
			query[spec.ScopeParam] = scopeID
		}

		payload, err := json.Marshal(connectivity.APIRequest{Path: spec.Path, Query: query})
		if err != nil {
			return nil, fmt.Errorf("oie: encode request: %w", err)
		}

		body, err := c.router.Call(ctx, spec.Connector, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, spec.Connector, err)
		}
		if body == nil {
			// Noop route: connector disabled.
			break
		}

		var raw any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("oie: decode %s response: %w", spec.Connector, err)
		}

		items, err := walkPath(raw, spec.ResultPath)
		if err != nil {
			return nil, fmt.Errorf("oie: extract %s items: %w", spec.Connector, err)
		}
		if len(items) == 0 {
			break
		}

		all = append(all, items...)
		c.logger.DebugContext(ctx, "fetched page",
			"connector", spec.Connector, "page", page, "items", len(items))

		if len(items) < c.pageSize {
			break
		}
	}

	return all, nil
}

// walkPath follows a dot-notation path into decoded JSON and returns the
// array found there. An empty path expects the root to be an array; a path
// ending on an object wraps it as a single-element array so callers always
// get a list.
func walkPath(raw any, path string) ([]any, error) {
	cur := raw
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("segment %q: not an object", part)
			}
			next, ok := obj[part]
			if !ok {
				// Missing path means no items rather than a malformed
				// response: upstream omits the array when it is empty.
				return nil, nil
			}
			cur = next
		}
	}

	switch v := cur.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("path %q: not an array or object", path)
	}
}
