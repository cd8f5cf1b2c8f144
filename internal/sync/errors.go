// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
errors.go - Synchronization Error Taxonomy

Errors returned by the fetch/reconcile path fall into a small taxonomy
that the job layer maps onto retry behavior:

  - ErrNotModified: conditional cache hit, short-circuit success
  - ErrRemoteNotFound: remote entity gone, triggers local delete
  - RateLimitedError: wait out the provider's reset window
  - ServerError: upstream 5xx, bounded retry with short fixed backoff
  - ComplexityError: GraphQL batch too large, shrink and retry
  - ConflictError: natural key collision, exponential backoff with ceiling
  - ValidationError: payload cannot map to schema, skip item and continue
  - ErrUnresolvable: required relation missing, skip item and continue
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/octomirror/octomirror/internal/models"
)

var (
	// ErrNotModified signals a conditional request cache hit. It is not a
	// failure: the caller treats it as success with zero changes.
	ErrNotModified = errors.New("remote not modified")

	// ErrRemoteNotFound signals the remote entity no longer exists.
	ErrRemoteNotFound = errors.New("remote entity not found")

	// ErrUnresolvable signals a required relation could not be resolved
	// from the payload or the defaults tree. The item is skipped, the
	// batch continues.
	ErrUnresolvable = errors.New("required relation unresolvable")
)

// RateLimitedError signals the provider's rate limit budget is exhausted.
type RateLimitedError struct {
	// ResetAt is the instant the budget replenishes, from the provider's
	// reset header. Zero when the header was absent.
	ResetAt time.Time

	// RetryAfter is the provider-suggested wait, when given.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if !e.ResetAt.IsZero() {
		return fmt.Sprintf("rate limited until %s", e.ResetAt.UTC().Format(time.RFC3339))
	}
	return "rate limited"
}

// Wait returns how long to back off before the next attempt.
func (e *RateLimitedError) Wait(now time.Time) time.Duration {
	if e.RetryAfter > 0 {
		return e.RetryAfter
	}
	if !e.ResetAt.IsZero() && e.ResetAt.After(now) {
		// A small margin past the reset avoids landing exactly on it.
		return e.ResetAt.Sub(now) + 2*time.Second
	}
	return time.Minute
}

// ServerError signals an upstream 5xx-class failure.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("upstream server error: status %d", e.StatusCode)
}

// ComplexityError signals a GraphQL request exceeded the provider's
// complexity budget. The caller shrinks the batch and retries.
type ComplexityError struct {
	Message string
}

func (e *ComplexityError) Error() string {
	return "graphql complexity exceeded: " + e.Message
}

// ValidationError signals one payload could not be mapped onto the local
// schema. Per-item: never aborts the surrounding page or batch.
type ValidationError struct {
	Kind   models.Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s field %q: %s", e.Kind, e.Field, e.Reason)
}

// ConflictError signals a natural key collision routed to the identity
// conflict resolver.
type ConflictError struct {
	Conflict *models.IdentityConflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity conflict on %s key %v: local remote id %d vs incoming %d",
		e.Conflict.Kind, e.Conflict.NaturalKey, e.Conflict.LocalRemoteID, e.Conflict.IncomingRemote)
}

// RetryClass buckets an error for the scheduler's backoff policy.
type RetryClass int

const (
	// RetryNone marks errors that must not be retried.
	RetryNone RetryClass = iota

	// RetryShort marks transient upstream failures retried a bounded
	// number of times with a short fixed delay.
	RetryShort

	// RetryRateWindow marks rate limit signals; the delay must cross the
	// provider's reset window.
	RetryRateWindow

	// RetryExponential marks conflict and ambiguous-resolution errors
	// retried with exponential backoff up to a hard ceiling.
	RetryExponential
)

// ClassifyRetry maps an error onto its retry class.
func ClassifyRetry(err error) RetryClass {
	var rateErr *RateLimitedError
	var srvErr *ServerError
	var cplxErr *ComplexityError
	var confErr *ConflictError

	switch {
	case err == nil, errors.Is(err, ErrNotModified):
		return RetryNone
	case errors.As(err, &rateErr):
		return RetryRateWindow
	case errors.As(err, &srvErr), errors.As(err, &cplxErr):
		return RetryShort
	case errors.As(err, &confErr):
		return RetryExponential
	default:
		return RetryNone
	}
}
