// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
Package metrics provides Prometheus metrics collection and export for observability.

# Overview

The package provides metrics for:
  - GitHub API requests, conditional cache hits and rate limit budget
  - Reconciliation outcomes per entity kind
  - To-many relation link changes and identity conflicts
  - Database query performance (DuckDB)
  - Job queue throughput, dedup rate and retry causes
  - HTTP API endpoint latency and webhook delivery outcomes
  - Circuit breaker state transitions
  - Entity change event publishing

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8993/metrics

# Usage Example

	import (
	    "github.com/octomirror/octomirror/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	http.Handle("/metrics", promhttp.Handler())

	metrics.RecordGitHubRequest("rest", 200, 230*time.Millisecond)
	metrics.EntitiesReconciled.WithLabelValues("issue", "updated").Inc()
	metrics.RecordJobFinished("fetch_collection", "success", 12*time.Second)

# Cardinality Management

Labels stay within fixed vocabularies: entity kinds, collection names,
job operations, terminal statuses and grouped error types. Endpoint labels
are route patterns, never raw paths, and no label carries user data or
natural keys.

# Thread Safety

All metric recording functions are safe for concurrent use from multiple
goroutines; the Prometheus client library handles synchronization
internally.
*/
package metrics
