package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

// maxAPIResponseBody caps the amount of response data read from remote
// integration APIs to prevent memory exhaustion (10 MiB).
const maxAPIResponseBody int64 = 10 << 20

// apiConfig is the per-route config parsed from the connector_routes JSON.
type apiConfig struct {
	TimeoutMs int64             `json:"timeout_ms"`
	Headers   map[string]string `json:"headers"`
}

// APIRequest is the payload accepted by handlers built with APIFactory.
// Path is appended to the route's endpoint base URL; Query becomes the
// URL query string.
type APIRequest struct {
	Path  string            `json:"path"`
	Query map[string]string `json:"query,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references in header values from the
// environment, so credentials never sit in the routes table.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// APIFactory creates Handlers that GET JSON from a remote integration API.
// The payload must be a marshalled APIRequest. Per-route timeout and
// headers come from the config JSON column; header values support
// ${ENV_VAR} expansion at call time.
//
// Register it with:
//
//	router.RegisterTransport("api", connectivity.APIFactory(nil))
//
// A nil client uses a default http.Client with the route's timeout.
func APIFactory(client *http.Client) TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		base, err := url.Parse(endpoint)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, nil, fmt.Errorf("connectivity/api: invalid endpoint %q", endpoint)
		}

		var cfg apiConfig
		if len(config) > 0 {
			_ = json.Unmarshal(config, &cfg)
		}

		timeout := 30 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}

		c := client
		if c == nil {
			c = &http.Client{Timeout: timeout}
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			var apiReq APIRequest
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &apiReq); err != nil {
					return nil, fmt.Errorf("connectivity/api: decode request: %w", err)
				}
			}

			u := *base
			u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(apiReq.Path, "/")
			if len(apiReq.Query) > 0 {
				q := u.Query()
				for k, v := range apiReq.Query {
					q.Set(k, v)
				}
				u.RawQuery = q.Encode()
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return nil, fmt.Errorf("connectivity/api: create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")
			for k, v := range cfg.Headers {
				req.Header.Set(k, expandEnv(v))
			}

			resp, err := c.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/api: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBody))
			if err != nil {
				return nil, fmt.Errorf("connectivity/api: read response: %w", err)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("connectivity/api: status %d: %s", resp.StatusCode, body)
			}

			return body, nil
		}

		closeFn := func() {
			c.CloseIdleConnections()
		}

		return handler, closeFn, nil
	}
}
