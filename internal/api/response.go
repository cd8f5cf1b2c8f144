// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/logging"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta"`
}

// ErrorBody carries a machine-readable code and a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries response metadata for tracing.
type Meta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes returned by the API.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorized"
	CodeInternal         = "internal_error"
	CodeNotReady         = "not_ready"
	CodeMethodNotAllowed = "method_not_allowed"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp *Response) {
	if resp.Meta == nil {
		resp.Meta = &Meta{}
	}
	resp.Meta.RequestID = logging.RequestIDFromContext(r.Context())
	resp.Meta.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("encode response")
	}
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, r, status, &Response{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, &Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}
