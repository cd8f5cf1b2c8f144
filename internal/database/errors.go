// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package database

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("row not found")

	// ErrUniqueViolation is returned when an insert collides with an
	// existing natural key. Callers treat this as an identity conflict
	// signal, not a storage failure.
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// IsUniqueViolation reports whether the error is a natural key collision,
// either our sentinel or a raw DuckDB constraint error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "primary key constraint")
}
