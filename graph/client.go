// Package graph implements the client for the broker's GraphQL admin
// endpoint. All queries and mutations go through a single POST endpoint;
// a non-empty errors array in the response is treated as a hard failure
// of that call.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mqdeck/mqdeck/observability"
)

// Error kinds reported to the metrics pipeline.
const (
	errKindTransport = "transport"
	errKindGraphQL   = "graphql"
	errKindDecode    = "decode"
)

// Client talks to one GraphQL endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	token    func() string // optional bearer token source
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests, custom
// timeouts).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource sets a callback that supplies the bearer token for each
// request. An empty return value omits the Authorization header.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// New returns a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request is the GraphQL POST body.
type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// response is the GraphQL envelope.
type response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQLError is a server-side error reported in the response's errors
// array. Only the first message is surfaced, matching how the admin UI
// presents failures.
type GraphQLError struct {
	Message string
}

func (e *GraphQLError) Error() string { return e.Message }

// Query executes a query or mutation and returns the data fields keyed by
// selection name. operation is a short label used for metrics only.
func (c *Client) Query(ctx context.Context, operation, query string, vars map[string]any) (map[string]json.RawMessage, error) {
	observability.GraphQLRequests.WithLabelValues(operation).Inc()
	start := time.Now()
	defer func() {
		observability.GraphQLLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.GraphQLErrors.WithLabelValues(errKindTransport).Inc()
		return nil, fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.GraphQLErrors.WithLabelValues(errKindTransport).Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		observability.GraphQLErrors.WithLabelValues(errKindTransport).Inc()
		return nil, fmt.Errorf("POST %s: unexpected status %d", c.endpoint, resp.StatusCode)
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		observability.GraphQLErrors.WithLabelValues(errKindDecode).Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(env.Errors) > 0 {
		observability.GraphQLErrors.WithLabelValues(errKindGraphQL).Inc()
		return nil, &GraphQLError{Message: env.Errors[0].Message}
	}
	return env.Data, nil
}
