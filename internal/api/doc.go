// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package api serves the HTTP control surface: sync triggers, job
// status, identity conflict inspection, webhook ingestion, health
// probes and Prometheus metrics. Routing is Chi with CORS and per-IP
// rate limiting; responses share a single envelope format.
package api
