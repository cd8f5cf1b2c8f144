// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package database

import "testing"

func TestBuildInClause(t *testing.T) {
	tests := []struct {
		name             string
		ids              []int64
		wantPlaceholders string
		wantArgs         int
	}{
		{name: "empty", ids: nil, wantPlaceholders: "", wantArgs: 0},
		{name: "single", ids: []int64{42}, wantPlaceholders: "?", wantArgs: 1},
		{name: "three", ids: []int64{1, 2, 3}, wantPlaceholders: "?, ?, ?", wantArgs: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placeholders, args := buildInClause(tt.ids)
			if placeholders != tt.wantPlaceholders {
				t.Errorf("placeholders = %q, want %q", placeholders, tt.wantPlaceholders)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestChunkIDs(t *testing.T) {
	makeIDs := func(n int) []int64 {
		ids := make([]int64, n)
		for i := range ids {
			ids[i] = int64(i)
		}
		return ids
	}

	tests := []struct {
		name       string
		count      int
		wantChunks int
		wantLast   int
	}{
		{name: "empty", count: 0, wantChunks: 0},
		{name: "below limit", count: 10, wantChunks: 1, wantLast: 10},
		{name: "exactly at limit", count: maxInClauseParams, wantChunks: 1, wantLast: maxInClauseParams},
		{name: "one over limit", count: maxInClauseParams + 1, wantChunks: 2, wantLast: 1},
		{name: "several chunks", count: 3*maxInClauseParams + 17, wantChunks: 4, wantLast: 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkIDs(makeIDs(tt.count))
			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			if tt.wantChunks == 0 {
				return
			}
			if got := len(chunks[len(chunks)-1]); got != tt.wantLast {
				t.Errorf("last chunk len = %d, want %d", got, tt.wantLast)
			}

			total := 0
			for _, c := range chunks {
				total += len(c)
			}
			if total != tt.count {
				t.Errorf("total ids across chunks = %d, want %d", total, tt.count)
			}
		})
	}
}
