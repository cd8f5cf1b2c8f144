// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package models defines the local data model for mirrored GitHub entities:
// entity kinds and their field schemas, the generic Row representation the
// sync engine and store operate on, synchronization state tracking, job
// records, identity conflicts, and outbound change events.
package models
