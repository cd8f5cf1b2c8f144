// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
)

// CircuitBreakerClient wraps a RemoteClient with the circuit breaker
// pattern, preventing cascading failures when the upstream API is
// unavailable or slow.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should exercise the wrapped client directly rather than mock the
// breaker.
type CircuitBreakerClient struct {
	client RemoteClient
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient wraps the client with a circuit breaker.
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(client RemoteClient) *CircuitBreakerClient {
	cbName := "github-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		// Cache hits, missing remotes and rate limits are expected
		// protocol outcomes, not upstream health signals.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, ErrNotModified) || errors.Is(err, ErrRemoteNotFound) {
				return true
			}
			var rateErr *RateLimitedError
			return errors.As(err, &rateErr)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.SetCircuitBreakerState(name, toStr)
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.WithLabelValues(name).Inc()
			}
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// GetObject implements RemoteClient with breaker protection.
func (cbc *CircuitBreakerClient) GetObject(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*ObjectResult, error) {
	result, err := cbc.cb.Execute(func() (interface{}, error) {
		return cbc.client.GetObject(ctx, path, params, cond)
	})
	return castResult[ObjectResult](result, err)
}

// GetPage implements RemoteClient with breaker protection.
func (cbc *CircuitBreakerClient) GetPage(ctx context.Context, path string, params url.Values, cond ConditionalHeaders) (*PageResult, error) {
	result, err := cbc.cb.Execute(func() (interface{}, error) {
		return cbc.client.GetPage(ctx, path, params, cond)
	})
	return castResult[PageResult](result, err)
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToString converts a circuit breaker state to its metric label.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
