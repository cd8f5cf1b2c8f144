// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package jobs runs the synchronization job queue.
//
// The queue admits at most one live job per identifier; duplicate enqueue
// requests are merged into the existing job. That identifier dedup is the
// only mutual exclusion the system relies on, so two workers never operate
// on the same entity concurrently.
//
// Workers pick the highest-priority eligible job, execute it through the
// configured Executor, and translate failures into a retry schedule:
// transient upstream errors retry after a fixed short delay, rate limit
// signals wait out the provider's reset window, and conflicts back off
// exponentially up to a ceiling. Jobs whose subject disappeared are
// canceled rather than retried.
//
// Finished jobs are persisted to a Badger store with a retention TTL so
// job history survives restarts and can be served by the status API.
package jobs
