// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

// SyncState tracks where an entity sits in the fetch/mutate lifecycle.
//
// Entities in any Awaiting state carry a local mutation that has not been
// confirmed by the remote side yet; an incoming fetch must not overwrite
// them (the pending-mutation guard in the reconciler).
type SyncState string

const (
	// SyncAwaitingCreate means the entity was created locally and the
	// remote counterpart does not exist yet.
	SyncAwaitingCreate SyncState = "awaiting_create"

	// SyncAwaitingUpdate means local changes are waiting to be pushed.
	SyncAwaitingUpdate SyncState = "awaiting_update"

	// SyncAwaitingDelete means a local delete is waiting to be pushed.
	SyncAwaitingDelete SyncState = "awaiting_delete"

	// SyncFetched means the entity mirrors the remote state as of fetched_at.
	SyncFetched SyncState = "fetched"

	// SyncErrCreate, SyncErrUpdate, SyncErrDelete and SyncErrFetch mark the
	// corresponding operation as terminally failed, pending operator review.
	SyncErrCreate SyncState = "err_create"
	SyncErrUpdate SyncState = "err_update"
	SyncErrDelete SyncState = "err_delete"
	SyncErrFetch  SyncState = "err_fetch"
)

// IsAwaiting reports whether the state carries an unconfirmed local mutation.
func (s SyncState) IsAwaiting() bool {
	switch s {
	case SyncAwaitingCreate, SyncAwaitingUpdate, SyncAwaitingDelete:
		return true
	default:
		return false
	}
}

// IsError reports whether the state is a terminal error state.
func (s SyncState) IsError() bool {
	switch s {
	case SyncErrCreate, SyncErrUpdate, SyncErrDelete, SyncErrFetch:
		return true
	default:
		return false
	}
}
