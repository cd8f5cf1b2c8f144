// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
graphql.go - GraphQL Transport

Batch fetches over the upstream GraphQL endpoint. The structured error
list in a GraphQL response is parsed into three classes:

  - internal-server-class errors: retryable (ServerError)
  - complexity-exceeded / rate-limited errors: shrink the batch and
    retry (ComplexityError / RateLimitedError)
  - generic errors: non-retryable, surfaced to the caller

BatchFetchIssues demonstrates the shrink-and-retry loop: when the
provider rejects a batch for complexity, the batch is halved until it
fits or a single item still fails.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
)

// GraphQLClient executes queries against the upstream GraphQL endpoint.
type GraphQLClient struct {
	endpoint   string
	token      string
	userAgent  string
	httpClient *http.Client
}

// NewGraphQLClient creates a GraphQL transport from configuration.
func NewGraphQLClient(cfg *config.GitHubConfig) *GraphQLClient {
	return &GraphQLClient{
		endpoint:  cfg.GraphQLURL,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// graphQLError is one entry of a GraphQL response's error list.
type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// graphQLResponse is the standard response wrapper.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query executes one GraphQL query and decodes the data field into out.
// The response's error list is classified per the sync error taxonomy.
func (c *GraphQLClient) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordGitHubRequest("graphql", 0, time.Since(start))
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer closeBody(resp)
	metrics.RecordGitHubRequest("graphql", resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 500 {
		return &ServerError{StatusCode: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql request failed with status %d: %s",
			resp.StatusCode, string(readBodyForError(resp.Body)))
	}

	var wrapper graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}

	if err := classifyGraphQLErrors(wrapper.Errors); err != nil {
		return err
	}

	if out != nil && len(wrapper.Data) > 0 {
		if err := json.Unmarshal(wrapper.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}

// classifyGraphQLErrors folds the response error list into one error of
// the taxonomy. The most actionable class wins: rate/complexity before
// server errors before generic failures.
func classifyGraphQLErrors(errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}

	var firstServer, firstGeneric *graphQLError
	for i := range errs {
		e := &errs[i]
		switch {
		case e.Type == "RATE_LIMITED":
			return &RateLimitedError{}
		case e.Type == "MAX_NODE_LIMIT_EXCEEDED" ||
			strings.Contains(strings.ToLower(e.Message), "complexity") ||
			strings.Contains(strings.ToLower(e.Message), "exceeds maximum"):
			return &ComplexityError{Message: e.Message}
		case e.Type == "NOT_FOUND":
			// Handled per-node by the caller; alone it means the whole
			// subject is gone.
			if len(errs) == 1 {
				return ErrRemoteNotFound
			}
		case e.Type == "INTERNAL" || strings.Contains(strings.ToLower(e.Message), "something went wrong"):
			if firstServer == nil {
				firstServer = e
			}
		default:
			if firstGeneric == nil {
				firstGeneric = e
			}
		}
	}

	if firstServer != nil {
		return &ServerError{StatusCode: http.StatusInternalServerError, Body: firstServer.Message}
	}
	if firstGeneric != nil {
		return fmt.Errorf("graphql error (%s): %s", firstGeneric.Type, firstGeneric.Message)
	}
	return nil
}

// issueNodeQuery is the per-issue fragment of a batch query. Field names
// are aliased to match the REST payload shape so the mapper handles both
// transports identically.
const issueNodeQuery = `i%d: issue(number: %d) {
		number
		title
		body
		state
		locked
		created_at: createdAt
		updated_at: updatedAt
		closed_at: closedAt
		user: author { login }
	}`

// BatchFetchIssues fetches many issues of one repository in a single
// GraphQL round trip, halving the batch on complexity rejections. The
// result maps issue number to a REST-shaped payload; numbers the remote
// no longer knows are absent from the map.
func (c *GraphQLClient) BatchFetchIssues(ctx context.Context, owner, name string, numbers []int) (map[int]map[string]any, error) {
	out := make(map[int]map[string]any, len(numbers))

	batch := numbers
	for len(batch) > 0 {
		size := len(batch)
		chunk := batch[:size]

		payloads, err := c.fetchIssueChunk(ctx, owner, name, chunk)
		if err != nil {
			var cplx *ComplexityError
			if errors.As(err, &cplx) && size > 1 {
				// Halve and retry the same numbers in two pieces.
				half := size / 2
				logging.Debug().
					Int("from", size).
					Int("to", half).
					Msg("Shrinking graphql batch after complexity rejection")
				first, err := c.BatchFetchIssues(ctx, owner, name, chunk[:half])
				if err != nil {
					return nil, err
				}
				second, err := c.BatchFetchIssues(ctx, owner, name, chunk[half:])
				if err != nil {
					return nil, err
				}
				for k, v := range first {
					out[k] = v
				}
				for k, v := range second {
					out[k] = v
				}
				batch = batch[size:]
				continue
			}
			return nil, err
		}

		for k, v := range payloads {
			out[k] = v
		}
		batch = batch[size:]
	}

	return out, nil
}

func (c *GraphQLClient) fetchIssueChunk(ctx context.Context, owner, name string, numbers []int) (map[int]map[string]any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "query($owner: String!, $name: String!) { repository(owner: $owner, name: $name) {\n")
	for _, n := range numbers {
		fmt.Fprintf(&sb, issueNodeQuery+"\n", n, n)
	}
	sb.WriteString("} }")

	var data struct {
		Repository map[string]json.RawMessage `json:"repository"`
	}
	err := c.Query(ctx, sb.String(), map[string]any{"owner": owner, "name": name}, &data)
	if err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, ErrRemoteNotFound
	}

	out := make(map[int]map[string]any, len(numbers))
	for _, n := range numbers {
		raw, ok := data.Repository[fmt.Sprintf("i%d", n)]
		if !ok || string(raw) == "null" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("malformed issue node %d: %w", n, err)
		}
		out[n] = payload
	}
	return out, nil
}
