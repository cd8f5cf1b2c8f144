// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

import "time"

// ConflictResolution is the outcome applied to an identity conflict.
type ConflictResolution string

const (
	// ResolutionPending marks a conflict that has been recorded but not
	// yet acted on.
	ResolutionPending ConflictResolution = "pending"

	// ResolutionRekeyed means the stale local row was moved aside by
	// rewriting its natural key, freeing the key for the incoming entity.
	ResolutionRekeyed ConflictResolution = "rekeyed"

	// ResolutionAdopted means the local row was confirmed to be the same
	// remote object under a changed identifier and was updated in place.
	ResolutionAdopted ConflictResolution = "adopted"

	// ResolutionDropped means the incoming entity was discarded because a
	// pending local mutation owns the key.
	ResolutionDropped ConflictResolution = "dropped"
)

// IdentityConflict records a collision between an incoming remote entity
// and a local row holding the same natural key under a different remote
// identity.
type IdentityConflict struct {
	Kind           Kind               `json:"kind"`
	NaturalKey     map[string]any     `json:"natural_key"`
	LocalID        int64              `json:"local_id"`
	LocalRemoteID  int64              `json:"local_remote_id"`
	IncomingRemote int64              `json:"incoming_remote_id"`
	DetectedAt     time.Time          `json:"detected_at"`
	Resolution     ConflictResolution `json:"resolution"`
	Note           string             `json:"note,omitempty"`
}
