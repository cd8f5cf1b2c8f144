// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
Package database provides DuckDB-backed storage for mirrored entities.

The package exposes a schema-driven store: callers pass models.Row values
and an entity kind, and the store derives tables, columns and natural keys
from the models schema registry. This keeps the reconciler and relation
differ free of per-kind SQL.

# Layout

  - database.go: connection lifecycle, checkpointing
  - schema.go: DDL for entity tables, link tables and indexes
  - store.go: generic CRUD (natural key lookup, insert, scoped update,
    bulk delete, link table operations)
  - conflicts.go: identity conflict audit trail
  - errors.go: ErrNotFound, ErrUniqueViolation and classification

# Concurrency

DuckDB serializes writes internally; the store relies on the job queue's
identifier dedup to prevent two writers from reconciling the same entity
concurrently, and otherwise performs no locking of its own.
*/
package database
