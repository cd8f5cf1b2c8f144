// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

// RecordConflict appends an identity conflict to the audit table.
func (db *DB) RecordConflict(ctx context.Context, c *models.IdentityConflict) error {
	keyJSON, err := json.Marshal(c.NaturalKey)
	if err != nil {
		return fmt.Errorf("failed to encode natural key: %w", err)
	}

	detectedAt := c.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO identity_conflicts
			(kind, natural_key, local_id, local_remote_id, incoming_remote_id, detected_at, resolution, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.Kind), string(keyJSON), c.LocalID, c.LocalRemoteID,
		c.IncomingRemote, detectedAt, string(c.Resolution), c.Note)
	metrics.RecordDBQuery("insert", "identity_conflicts", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to record identity conflict: %w", err)
	}

	metrics.IdentityConflicts.WithLabelValues(string(c.Kind), string(c.Resolution)).Inc()
	return nil
}

// MarkConflictResolved records the outcome for every pending conflict
// matching the kind and natural key.
func (db *DB) MarkConflictResolved(ctx context.Context, c *models.IdentityConflict, resolution models.ConflictResolution, note string) error {
	keyJSON, err := json.Marshal(c.NaturalKey)
	if err != nil {
		return fmt.Errorf("failed to encode natural key: %w", err)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err = db.conn.ExecContext(ctx,
		`UPDATE identity_conflicts SET resolution = ?, note = ?
		 WHERE kind = ? AND natural_key = ? AND resolution = ?`,
		string(resolution), note, string(c.Kind), string(keyJSON),
		string(models.ResolutionPending))
	metrics.RecordDBQuery("update", "identity_conflicts", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to mark conflict resolved: %w", err)
	}

	metrics.IdentityConflicts.WithLabelValues(string(c.Kind), string(resolution)).Inc()
	return nil
}

// ListConflicts returns the most recent identity conflicts, newest first.
func (db *DB) ListConflicts(ctx context.Context, limit int) ([]*models.IdentityConflict, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT kind, natural_key, local_id, local_remote_id, incoming_remote_id, detected_at, resolution, note
		 FROM identity_conflicts ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity conflicts: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []*models.IdentityConflict
	for rows.Next() {
		var (
			c       models.IdentityConflict
			kind    string
			keyJSON string
			res     string
		)
		if err := rows.Scan(&kind, &keyJSON, &c.LocalID, &c.LocalRemoteID,
			&c.IncomingRemote, &c.DetectedAt, &res, &c.Note); err != nil {
			return nil, err
		}
		c.Kind = models.Kind(kind)
		c.Resolution = models.ConflictResolution(res)
		if err := json.Unmarshal([]byte(keyJSON), &c.NaturalKey); err != nil {
			return nil, fmt.Errorf("malformed natural key in conflict row: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
