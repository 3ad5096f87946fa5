// Package assist talks to the assistant endpoint used by the script
// editor. Replies are free text and often wrap the interesting part in
// a fenced code block; ExtractCode pulls that out.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is one assistant invocation.
type Request struct {
	Prompt  string   `json:"prompt"`
	Context string   `json:"context,omitempty"`
	Docs    []string `json:"docs,omitempty"`
}

// Response is what the endpoint returns. A non-empty Error means the
// backend refused or failed the request even though HTTP succeeded.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Error string `json:"error,omitempty"`
}

// Client posts requests to a single assistant endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a client. Assistant calls can be slow, so the default
// timeout is generous.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask sends one request and returns the reply.
func (c *Client) Ask(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode assist request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build assist request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assist endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("assist endpoint returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode assist response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("assistant error: %s", out.Error)
	}
	return &out, nil
}

// ExtractCode returns the contents of the first fenced code block in
// text, plus everything after the block as explanation. ok is false
// when the text has no complete fence; callers then use the raw text.
func ExtractCode(text string) (code, explanation string, ok bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", "", false
	}
	rest := text[start+3:]
	// Skip the optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", "", false
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", "", false
	}
	code = strings.TrimRight(rest[:end], "\n")
	explanation = strings.TrimSpace(rest[end+3:])
	return code, explanation, true
}
