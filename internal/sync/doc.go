// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package sync implements the synchronization engine: conditional
// fetching against the GitHub REST and GraphQL APIs, payload mapping
// against the entity schemas, reconciliation into the local store,
// relation diffing, and identity conflict resolution. The Manager ties
// these together as executable job operations.
package sync
