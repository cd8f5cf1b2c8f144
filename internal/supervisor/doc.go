// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package supervisor builds the suture supervision tree the process
// runs under. The tree has two layers: sync (job queue, embedded NATS)
// and api (HTTP server), so a crashing sync component restarts without
// taking the API down with it.
package supervisor
