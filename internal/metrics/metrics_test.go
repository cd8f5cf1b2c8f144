// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordGitHubRequest(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		status    int
		duration  time.Duration
	}{
		{name: "rest success", transport: "rest", status: 200, duration: 120 * time.Millisecond},
		{name: "rest not modified", transport: "rest", status: 304, duration: 40 * time.Millisecond},
		{name: "graphql server error", transport: "graphql", status: 502, duration: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.CollectAndCount(GitHubRequestsTotal)
			RecordGitHubRequest(tt.transport, tt.status, tt.duration)
			after := testutil.CollectAndCount(GitHubRequestsTotal)
			if after < before {
				t.Errorf("expected series count to not decrease, got %d -> %d", before, after)
			}
		})
	}
}

func TestRecordDBQueryErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "constraint violation", err: errors.New("UNIQUE constraint failed"), want: "constraint"},
		{name: "timeout", err: errors.New("query timeout exceeded"), want: "timeout"},
		{name: "deadline", err: errors.New("context deadline exceeded"), want: "timeout"},
		{name: "other", err: errors.New("disk I/O error"), want: "other"},
		{name: "nil error records no error metric", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				RecordDBQuery("select", "issues", time.Millisecond, nil)
				return
			}
			if got := classifyDBError(tt.err); got != tt.want {
				t.Errorf("classifyDBError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestSetCircuitBreakerState(t *testing.T) {
	tests := []struct {
		state string
		want  float64
	}{
		{state: "closed", want: 0},
		{state: "half-open", want: 1},
		{state: "open", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			SetCircuitBreakerState("github", tt.state)
			got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("github"))
			if got != tt.want {
				t.Errorf("state %q: gauge = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestRecordJobFinished(t *testing.T) {
	RecordJobFinished("fetch", "success", 3*time.Second)
	RecordJobFinished("fetch", "error", 500*time.Millisecond)

	if n := testutil.CollectAndCount(JobsFinished); n < 2 {
		t.Errorf("expected at least 2 series on JobsFinished, got %d", n)
	}
}
