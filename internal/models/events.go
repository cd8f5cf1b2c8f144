// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

import "time"

// ChangeKind classifies an entity change event.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeLinked   ChangeKind = "linked"
	ChangeUnlinked ChangeKind = "unlinked"
)

// EntityChanged is published after the store commits a reconciliation
// result, one event per materially changed entity.
type EntityChanged struct {
	Change     ChangeKind     `json:"change"`
	Kind       Kind           `json:"kind"`
	LocalID    int64          `json:"local_id"`
	RemoteID   int64          `json:"remote_id,omitempty"`
	NaturalKey map[string]any `json:"natural_key,omitempty"`

	// Changed lists the local field names whose values differed, empty
	// for create and delete events.
	Changed []string `json:"changed,omitempty"`

	// Relation names the to-many field for linked and unlinked events.
	Relation  string    `json:"relation,omitempty"`
	MemberIDs []int64   `json:"member_ids,omitempty"`
	At        time.Time `json:"at"`
}
