// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
github_client.go - Core GitHub REST API Client

This file provides the GitHubClient struct and HTTP communication layer
for the upstream REST API.

Client Features:
  - Token authentication and API version header on every request
  - Conditional requests (If-Modified-Since / If-None-Match)
  - Steady-state rate limiting via a token bucket
  - Automatic HTTP 429/secondary-limit handling with reset-aware backoff
  - Link header pagination parsing
  - Rate limit budget tracking from X-RateLimit-* headers

Resilience Mechanisms:
  - Rate Limiting: waits out Retry-After or the X-RateLimit-Reset window
  - Retries: bounded retry count for rate-limited requests
  - Context: all methods accept context for cancellation

Related Files:
  - circuit_breaker.go: gobreaker wrapper around this client
  - graphql.go: GraphQL transport with structured error parsing
  - conditional.go: freshness header computation
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
)

// maxErrorBodySize limits the amount of response body read for error
// reporting, preventing unbounded allocation on large error responses.
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// RemoteClient is the upstream API surface the sync engine depends on.
// Implemented by GitHubClient for production and by test doubles.
type RemoteClient interface {
	// GetObject fetches a single JSON object. A 304 response surfaces as
	// ErrNotModified; a 404/410 as ErrRemoteNotFound.
	GetObject(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*ObjectResult, error)

	// GetPage fetches one page of a JSON array endpoint.
	GetPage(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*PageResult, error)
}

// ObjectResult is a single-object response with its freshness token.
type ObjectResult struct {
	Payload map[string]any
	ETag    string
}

// PageResult is one page of a list response.
type PageResult struct {
	Items []map[string]any

	// ETag is the response freshness token; only the first page's value
	// represents the collection.
	ETag string

	// NextURL is the parsed rel="next" link, empty on the last page.
	NextURL string
}

// GitHubClient handles communication with the GitHub REST API.
//
// Thread Safety: safe for concurrent use; each request creates its own
// HTTP request and the limiter is internally synchronized.
type GitHubClient struct {
	baseURL        string
	token          string
	apiVersion     string
	userAgent      string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewGitHubClient creates a GitHub API client from configuration.
func NewGitHubClient(cfg *config.GitHubConfig) *GitHubClient {
	return &GitHubClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		apiVersion: cfg.APIVersion,
		userAgent:  cfg.UserAgent,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries:     5,
		retryBaseDelay: time.Second,
	}
}

// GetObject fetches a single JSON object from the REST API.
func (c *GitHubClient) GetObject(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*ObjectResult, error) {
	resp, err := c.doRequest(ctx, path, params, cond)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return &ObjectResult{
		Payload: payload,
		ETag:    resp.Header.Get("ETag"),
	}, nil
}

// GetPage fetches one page of a JSON array endpoint and parses the Link
// header for the next page URL.
func (c *GitHubClient) GetPage(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*PageResult, error) {
	resp, err := c.doRequest(ctx, path, params, cond)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return &PageResult{
		Items:   items,
		ETag:    resp.Header.Get("ETag"),
		NextURL: parseLinkNext(resp.Header.Get("Link")),
	}, nil
}

// doRequest performs a rate-limited GET with conditional headers, mapping
// HTTP statuses onto the sync error taxonomy. 429 and secondary rate
// limit responses are retried with reset-aware backoff.
func (c *GitHubClient) doRequest(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*http.Response, error) {
	reqURL := c.requestURL(path, params)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req, cond)

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			metrics.RecordGitHubRequest("rest", 0, time.Since(start))
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		metrics.RecordGitHubRequest("rest", resp.StatusCode, time.Since(start))
		c.trackRateBudget(resp)

		switch {
		case resp.StatusCode == http.StatusNotModified:
			closeBody(resp)
			return nil, ErrNotModified

		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			closeBody(resp)
			return nil, ErrRemoteNotFound

		case isRateLimited(resp):
			rateErr := rateLimitFromHeaders(resp)
			closeBody(resp)

			if attempt == c.maxRetries {
				lastErr = rateErr
				break
			}

			delay := rateErr.Wait(time.Now())
			if delay > 0 {
				metrics.GitHubRateLimitWaits.Inc()
				logging.Warn().
					Str("path", path).
					Dur("delay", delay).
					Int("attempt", attempt+1).
					Msg("Rate limited, backing off")
			}
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case resp.StatusCode >= 500:
			body := readBodyForError(resp.Body)
			closeBody(resp)
			return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(body)}

		case resp.StatusCode >= 400:
			body := readBodyForError(resp.Body)
			closeBody(resp)
			return nil, fmt.Errorf("%s request failed with status %d: %s", path, resp.StatusCode, string(body))

		default:
			return resp, nil
		}

		if lastErr != nil {
			break
		}
	}

	return nil, lastErr
}

func (c *GitHubClient) requestURL(path string, params url.Values) string {
	// Absolute URLs come from Link headers and already carry their query.
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

func (c *GitHubClient) setHeaders(req *http.Request, cond ConditionalHeaders) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiVersion != "" {
		req.Header.Set("X-GitHub-Api-Version", c.apiVersion)
	}
	cond.Apply(req.Header)
}

// trackRateBudget exports the provider's remaining budget from response
// headers.
func (c *GitHubClient) trackRateBudget(resp *http.Response) {
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.ParseFloat(remaining, 64); err == nil {
			metrics.GitHubRateLimitRemaining.Set(n)
		}
	}
}

// isRateLimited detects both primary (429) and secondary (403 with an
// exhausted budget or Retry-After) rate limit responses.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("Retry-After") != "" {
		return true
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// rateLimitFromHeaders builds a RateLimitedError from the Retry-After and
// X-RateLimit-Reset headers.
func rateLimitFromHeaders(resp *http.Response) *RateLimitedError {
	rateErr := &RateLimitedError{}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			rateErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			rateErr.ResetAt = time.Unix(unix, 0)
		}
	}
	return rateErr
}

// parseLinkNext extracts the rel="next" URL from a Link response header.
func parseLinkNext(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(strings.TrimSpace(part), ";")
		if len(section) < 2 {
			continue
		}
		urlPart := strings.TrimSpace(section[0])
		if !strings.HasPrefix(urlPart, "<") || !strings.HasSuffix(urlPart, ">") {
			continue
		}
		for _, attr := range section[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return strings.Trim(urlPart, "<>")
			}
		}
	}
	return ""
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
