// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GitHub API Metrics
	GitHubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_requests_total",
			Help: "Total number of GitHub API requests",
		},
		[]string{"transport", "status"}, // transport: "rest", "graphql"
	)

	GitHubRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "github_request_duration_seconds",
			Help:    "GitHub API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	GitHubNotModified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_not_modified_total",
			Help: "Total number of 304 Not Modified responses (conditional cache hits)",
		},
		[]string{"kind"},
	)

	GitHubRateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "github_rate_limit_remaining",
			Help: "Remaining requests in the current GitHub rate limit window",
		},
	)

	GitHubRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "github_rate_limit_waits_total",
			Help: "Total number of times a request waited for the rate limit window to reset",
		},
	)

	GitHubPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_pages_fetched_total",
			Help: "Total number of list pages fetched",
		},
		[]string{"kind", "collection"},
	)

	// Reconciliation Metrics
	EntitiesReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entities_reconciled_total",
			Help: "Total number of entities reconciled against a remote payload",
		},
		[]string{"kind", "outcome"}, // "created", "updated", "unchanged", "skipped"
	)

	RelationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relation_ops_total",
			Help: "Total number of to-many relation link changes",
		},
		[]string{"kind", "relation", "op"}, // op: "add", "remove", "orphan_delete"
	)

	IdentityConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_conflicts_total",
			Help: "Total number of natural key identity conflicts detected",
		},
		[]string{"kind", "resolution"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Job Queue Metrics
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"operation"},
	)

	JobsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_deduplicated_total",
			Help: "Total number of enqueue requests merged into an existing job",
		},
		[]string{"operation"},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Total number of finished jobs by terminal status",
		},
		[]string{"operation", "status"},
	)

	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_retries_total",
			Help: "Total number of job retry attempts",
		},
		[]string{"operation", "reason"}, // "server_error", "rate_limited", "conflict"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	JobsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_pending",
			Help: "Current number of queued and delayed jobs",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Current number of running jobs",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook deliveries received",
		},
		[]string{"event", "outcome"}, // outcome: "accepted", "bad_signature", "ignored"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker open transitions",
		},
		[]string{"name"},
	)

	// Event Publishing Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of entity change events published",
		},
		[]string{"change", "kind"},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_publish_errors_total",
			Help: "Total number of failed event publishes",
		},
	)
)

// RecordGitHubRequest records one GitHub API round trip.
func RecordGitHubRequest(transport string, status int, duration time.Duration) {
	GitHubRequestsTotal.WithLabelValues(transport, strconv.Itoa(status)).Inc()
	GitHubRequestDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// RecordDBQuery records a database query's duration and outcome.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table, classifyDBError(err)).Inc()
	}
}

func classifyDBError(err error) string {
	msg := err.Error()
	switch {
	case contains(msg, "constraint"):
		return "constraint"
	case contains(msg, "timeout"), contains(msg, "deadline"):
		return "timeout"
	default:
		return "other"
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// RecordJobFinished records a job reaching a terminal status.
func RecordJobFinished(operation, status string, duration time.Duration) {
	JobsFinished.WithLabelValues(operation, status).Inc()
	JobDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest records a served HTTP API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetCircuitBreakerState maps a breaker state name onto the state gauge.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}
