// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/octomirror/octomirror/internal/models"
)

func TestClassifyRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{name: "nil", err: nil, want: RetryNone},
		{name: "server error", err: &ServerError{StatusCode: 503}, want: RetryShort},
		{name: "wrapped server error", err: fmt.Errorf("fetch: %w", &ServerError{StatusCode: 500}), want: RetryShort},
		{name: "rate limited", err: &RateLimitedError{RetryAfter: time.Minute}, want: RetryRateWindow},
		{name: "identity conflict", err: &ConflictError{Conflict: &models.IdentityConflict{}}, want: RetryExponential},
		{name: "not found", err: ErrRemoteNotFound, want: RetryNone},
		{name: "plain error", err: errors.New("boom"), want: RetryNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRetry(tt.err); got != tt.want {
				t.Errorf("ClassifyRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRateLimitedErrorWait(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	retryAfter := &RateLimitedError{RetryAfter: 30 * time.Second}
	if got := retryAfter.Wait(now); got != 30*time.Second {
		t.Errorf("Wait with Retry-After = %v, want 30s", got)
	}

	reset := &RateLimitedError{ResetAt: now.Add(90 * time.Second)}
	if got := reset.Wait(now); got != 92*time.Second {
		t.Errorf("Wait to reset = %v, want 92s including margin", got)
	}

	unknown := &RateLimitedError{}
	if got := unknown.Wait(now); got != time.Minute {
		t.Errorf("Wait without hints = %v, want the 1m default", got)
	}

	past := &RateLimitedError{ResetAt: now.Add(-time.Hour)}
	if got := past.Wait(now); got != time.Minute {
		t.Errorf("Wait past reset = %v, want the 1m default", got)
	}
}
