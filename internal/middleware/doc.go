// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package middleware provides HTTP middleware shared by the API server:
// request id propagation into the logging context and Prometheus request
// instrumentation.
package middleware
