// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"net/http"
	"time"
)

// ConditionalHeaders holds the freshness headers for one request. The
// zero value emits no conditional headers (an unconditional fetch).
type ConditionalHeaders struct {
	IfModifiedSince time.Time
	IfNoneMatch     string
}

// BuildConditional computes the conditional headers for a request from
// stored freshness metadata.
//
// Rules:
//   - force suppresses all conditional headers (always a full fetch)
//   - If-Modified-Since is emitted when a fetched-at timestamp exists
//   - If-None-Match is emitted when an ETag exists, but never for a page
//     beyond the first: only the first page's freshness represents the
//     whole collection
func BuildConditional(fetchedAt time.Time, etag string, force bool, page int) ConditionalHeaders {
	if force {
		return ConditionalHeaders{}
	}

	cond := ConditionalHeaders{}
	if !fetchedAt.IsZero() {
		cond.IfModifiedSince = fetchedAt
	}
	if etag != "" && page <= 1 {
		cond.IfNoneMatch = etag
	}
	return cond
}

// Apply writes the conditional headers onto an outgoing request.
func (c ConditionalHeaders) Apply(h http.Header) {
	if !c.IfModifiedSince.IsZero() {
		h.Set("If-Modified-Since", c.IfModifiedSince.UTC().Format(http.TimeFormat))
	}
	if c.IfNoneMatch != "" {
		h.Set("If-None-Match", c.IfNoneMatch)
	}
}

// IsZero reports whether the header set is unconditional.
func (c ConditionalHeaders) IsZero() bool {
	return c.IfModifiedSince.IsZero() && c.IfNoneMatch == ""
}
