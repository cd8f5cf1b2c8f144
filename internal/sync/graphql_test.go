// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/config"
)

func testGraphQLClient(endpoint string) *GraphQLClient {
	return NewGraphQLClient(&config.GitHubConfig{
		GraphQLURL: endpoint,
		Token:      "test-token",
		UserAgent:  "octomirror-test",
		Timeout:    5 * time.Second,
	})
}

func TestClassifyGraphQLErrors(t *testing.T) {
	tests := []struct {
		name string
		errs []graphQLError
		want func(error) bool
	}{
		{
			name: "empty list",
			errs: nil,
			want: func(err error) bool { return err == nil },
		},
		{
			name: "rate limited",
			errs: []graphQLError{{Type: "RATE_LIMITED", Message: "API rate limit exceeded"}},
			want: func(err error) bool {
				var e *RateLimitedError
				return errors.As(err, &e)
			},
		},
		{
			name: "node limit",
			errs: []graphQLError{{Type: "MAX_NODE_LIMIT_EXCEEDED", Message: "too many nodes"}},
			want: func(err error) bool {
				var e *ComplexityError
				return errors.As(err, &e)
			},
		},
		{
			name: "complexity by message",
			errs: []graphQLError{{Message: "Query has complexity of 600000, which exceeds maximum"}},
			want: func(err error) bool {
				var e *ComplexityError
				return errors.As(err, &e)
			},
		},
		{
			name: "sole not found",
			errs: []graphQLError{{Type: "NOT_FOUND", Message: "Could not resolve"}},
			want: func(err error) bool { return errors.Is(err, ErrRemoteNotFound) },
		},
		{
			name: "internal",
			errs: []graphQLError{{Type: "INTERNAL", Message: "Something went wrong"}},
			want: func(err error) bool {
				var e *ServerError
				return errors.As(err, &e)
			},
		},
		{
			name: "generic",
			errs: []graphQLError{{Type: "FORBIDDEN", Message: "nope"}},
			want: func(err error) bool {
				return err != nil && strings.Contains(err.Error(), "FORBIDDEN")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := classifyGraphQLErrors(tt.errs); !tt.want(err) {
				t.Errorf("classifyGraphQLErrors() = %v", err)
			}
		})
	}
}

func TestBatchFetchIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"data": map[string]any{
				"repository": map[string]any{
					"i1": map[string]any{"number": 1, "title": "first", "state": "OPEN"},
					"i2": nil,
					"i3": map[string]any{"number": 3, "title": "third", "state": "CLOSED"},
				},
			},
		})
	}))
	defer srv.Close()

	c := testGraphQLClient(srv.URL)
	out, err := c.BatchFetchIssues(context.Background(), "alice", "widgets", []int{1, 2, 3})
	if err != nil {
		t.Fatalf("BatchFetchIssues failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 with the null node absent", len(out))
	}
	if out[1]["title"] != "first" || out[3]["title"] != "third" {
		t.Errorf("out = %v", out)
	}
	if _, ok := out[2]; ok {
		t.Error("null node should be absent from the result")
	}
}

func TestBatchFetchIssuesHalvesOnComplexity(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		size := strings.Count(req.Query, "issue(number:")
		batchSizes = append(batchSizes, size)

		if size > 2 {
			writeJSON(t, w, map[string]any{
				"errors": []map[string]any{{"type": "MAX_NODE_LIMIT_EXCEEDED", "message": "too many nodes"}},
			})
			return
		}

		nodes := make(map[string]any)
		for _, frag := range strings.Split(req.Query, "issue(number: ")[1:] {
			num := frag[:strings.Index(frag, ")")]
			nodes["i"+num] = map[string]any{"number": json.Number(num), "title": "issue " + num}
		}
		writeJSON(t, w, map[string]any{
			"data": map[string]any{"repository": nodes},
		})
	}))
	defer srv.Close()

	c := testGraphQLClient(srv.URL)
	out, err := c.BatchFetchIssues(context.Background(), "alice", "widgets", []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("BatchFetchIssues failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want all 4 issues after halving", len(out))
	}
	if batchSizes[0] != 4 {
		t.Errorf("first batch size = %d, want 4", batchSizes[0])
	}
	for _, size := range batchSizes[1:] {
		if size > 2 {
			t.Errorf("post-rejection batch size = %d, want <= 2", size)
		}
	}
}

func TestGraphQLServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testGraphQLClient(srv.URL)
	err := c.Query(context.Background(), "query { viewer { login } }", nil, nil)
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Query error = %v, want ServerError", err)
	}
}
