// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package database

import "strings"

// maxInClauseParams bounds the number of parameters per IN clause. DuckDB
// handles large parameter lists but statement size grows with each one, so
// bulk operations chunk their id lists at this size.
const maxInClauseParams = 950

// buildInClause creates a parameterized IN clause for SQL queries.
//
// Example:
//
//	placeholders, args := buildInClause([]int64{1, 2, 3})
//	query := "DELETE FROM issues WHERE id IN (" + placeholders + ")"
func buildInClause(ids []int64) (string, []interface{}) {
	if len(ids) == 0 {
		return "", nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	return strings.Join(placeholders, ", "), args
}

// chunkIDs splits an id list into chunks of at most maxInClauseParams.
func chunkIDs(ids []int64) [][]int64 {
	if len(ids) == 0 {
		return nil
	}

	chunks := make([][]int64, 0, (len(ids)+maxInClauseParams-1)/maxInClauseParams)
	for start := 0; start < len(ids); start += maxInClauseParams {
		end := start + maxInClauseParams
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
