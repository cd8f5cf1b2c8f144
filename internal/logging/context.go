// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey is the private key type for logging context values.
type contextKey string

const (
	// jobIDKey carries the identifier of the background job a log line
	// belongs to, so all work done on behalf of one job correlates.
	jobIDKey contextKey = "job_id"

	// requestIDKey carries the HTTP request ID assigned by middleware.
	requestIDKey contextKey = "request_id"
)

// GenerateRequestID creates a new unique request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithJobID returns a new context tagged with a job identifier.
// Every log line emitted through Ctx() under this context carries the job_id.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext retrieves the job identifier from context, or "".
func JobIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID from context, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with context values (job_id, request_id) attached.
// This is the recommended way to log inside job handlers and HTTP handlers.
//
//	logging.Ctx(ctx).Info().Msg("page fetched")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()

	if jobID := JobIDFromContext(ctx); jobID != "" {
		logger = logger.With().Str("job_id", jobID).Logger()
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}

	return &logger
}
