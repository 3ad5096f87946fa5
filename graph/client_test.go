package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueryReturnsDataFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Variables["name"] != "bridge-1" {
			t.Fatalf("unexpected variables: %v", req.Variables)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"bridge":{"name":"bridge-1","enabled":true}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	data, err := c.Query(context.Background(), "getBridge",
		`query($name: String!) { bridge(name: $name) { name enabled } }`,
		map[string]any{"name": "bridge-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	var bridge struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal(data["bridge"], &bridge); err != nil {
		t.Fatalf("unmarshal field: %v", err)
	}
	if bridge.Name != "bridge-1" || !bridge.Enabled {
		t.Fatalf("unexpected bridge: %+v", bridge)
	}
}

func TestQueryErrorsArrayIsHardFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"bridge":null},"errors":[{"message":"bridge not found"},{"message":"second"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Query(context.Background(), "getBridge", `{ bridge { name } }`, nil)
	if err == nil {
		t.Fatal("expected error for non-empty errors array")
	}
	var gqlErr *GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Fatalf("expected GraphQLError, got %T", err)
	}
	if gqlErr.Message != "bridge not found" {
		t.Fatalf("expected first error message, got %q", gqlErr.Message)
	}
}

func TestQueryTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // dead endpoint

	c := New(srv.URL)
	if _, err := c.Query(context.Background(), "list", `{ bridges { name } }`, nil); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestQueryNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Query(context.Background(), "list", `{ bridges { name } }`, nil); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestTokenSourceSetsAuthorizationHeader(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTokenSource(func() string { return "tok-123" }))
	if _, err := c.Query(context.Background(), "ping", `{ __typename }`, nil); err != nil {
		t.Fatalf("query: %v", err)
	}
	if seen != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", seen)
	}
}
