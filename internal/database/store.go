// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
store.go - Generic Entity Storage

This file implements schema-driven CRUD over the entity tables. Rows move
in and out of the database as models.Row values, so the reconciler and the
relation differ operate on any entity kind without per-kind query code.

Write discipline:
  - Insert returns the generated local id via RETURNING and surfaces
    natural key collisions as ErrUniqueViolation
  - UpdateFields writes only the caller's changed-field set
  - Bulk id operations (DeleteByIDs, AddLinks, RemoveLinks) chunk their
    parameter lists at maxInClauseParams
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

// GetByNaturalKey loads the row of the given kind matching the natural key
// columns. Returns ErrNotFound when no row matches.
func (db *DB) GetByNaturalKey(ctx context.Context, kind models.Kind, key map[string]any) (*models.Row, error) {
	schema := models.SchemaFor(kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	conds := make([]string, 0, len(key))
	args := make([]any, 0, len(key))
	for _, col := range schema.NaturalKey {
		v, ok := key[col]
		if !ok {
			return nil, fmt.Errorf("natural key for %s is missing column %q", kind, col)
		}
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", schema.Table, strings.Join(conds, " AND "))
	return db.queryOneRow(ctx, kind, schema.Table, query, args...)
}

// GetByID loads a row by its local primary key.
func (db *DB) GetByID(ctx context.Context, kind models.Kind, id int64) (*models.Row, error) {
	schema := models.SchemaFor(kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE id = ?", schema.Table)
	return db.queryOneRow(ctx, kind, schema.Table, query, id)
}

// Insert stores a new row and returns its generated local id. Natural key
// collisions surface as ErrUniqueViolation.
func (db *DB) Insert(ctx context.Context, row *models.Row) (int64, error) {
	schema := models.SchemaFor(row.Kind)
	if schema == nil {
		return 0, fmt.Errorf("unknown entity kind %q", row.Kind)
	}

	cols := make([]string, 0, len(row.Fields))
	for col := range row.Fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = row.Fields[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		schema.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var id int64
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	metrics.RecordDBQuery("insert", schema.Table, time.Since(start), err)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, fmt.Errorf("insert into %s: %w", schema.Table, ErrUniqueViolation)
		}
		return 0, fmt.Errorf("insert into %s failed: %w", schema.Table, err)
	}

	row.ID = id
	row.New = false
	return id, nil
}

// UpdateFields writes only the given columns of an existing row.
func (db *DB) UpdateFields(ctx context.Context, kind models.Kind, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	schema := models.SchemaFor(kind)
	if schema == nil {
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, fields[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", schema.Table, strings.Join(sets, ", "))

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery("update", schema.Table, time.Since(start), err)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("update %s id=%d: %w", schema.Table, id, ErrUniqueViolation)
		}
		return fmt.Errorf("update %s id=%d failed: %w", schema.Table, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s id=%d: %w", schema.Table, id, ErrNotFound)
	}
	return nil
}

// DeleteByIDs removes rows by local id, chunking long id lists.
func (db *DB) DeleteByIDs(ctx context.Context, kind models.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	schema := models.SchemaFor(kind)
	if schema == nil {
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, chunk := range chunkIDs(ids) {
		placeholders, args := buildInClause(chunk)
		query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", schema.Table, placeholders)

		start := time.Now()
		_, err := db.conn.ExecContext(ctx, query, args...)
		metrics.RecordDBQuery("delete", schema.Table, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("delete from %s failed: %w", schema.Table, err)
		}
	}
	return nil
}

// LinkedIDs returns the member ids currently linked to the owner through a
// many-to-many link table.
func (db *DB) LinkedIDs(ctx context.Context, linkTable, ownerCol, memberCol string, ownerID int64) ([]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", memberCol, linkTable, ownerCol)
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	metrics.RecordDBQuery("select", linkTable, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("select from %s failed: %w", linkTable, err)
	}
	defer closeWithLog(rows, "rows")

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddLinks inserts owner-member pairs into a link table, ignoring pairs
// that already exist.
func (db *DB) AddLinks(ctx context.Context, linkTable, ownerCol, memberCol string, ownerID int64, memberIDs []int64) error {
	if len(memberIDs) == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING",
		linkTable, ownerCol, memberCol)

	start := time.Now()
	var firstErr error
	for _, memberID := range memberIDs {
		if _, err := db.conn.ExecContext(ctx, query, ownerID, memberID); err != nil {
			firstErr = fmt.Errorf("insert into %s failed: %w", linkTable, err)
			break
		}
	}
	metrics.RecordDBQuery("insert", linkTable, time.Since(start), firstErr)
	return firstErr
}

// RemoveLinks deletes owner-member pairs from a link table, chunking long
// member lists.
func (db *DB) RemoveLinks(ctx context.Context, linkTable, ownerCol, memberCol string, ownerID int64, memberIDs []int64) error {
	if len(memberIDs) == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, chunk := range chunkIDs(memberIDs) {
		placeholders, args := buildInClause(chunk)
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s IN (%s)",
			linkTable, ownerCol, memberCol, placeholders)

		start := time.Now()
		_, err := db.conn.ExecContext(ctx, query, append([]any{ownerID}, args...)...)
		metrics.RecordDBQuery("delete", linkTable, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("delete from %s failed: %w", linkTable, err)
		}
	}
	return nil
}

// ChildIDs returns the local ids of rows whose foreign key column points
// at the owner.
func (db *DB) ChildIDs(ctx context.Context, kind models.Kind, fkColumn string, ownerID int64) ([]int64, error) {
	schema := models.SchemaFor(kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", schema.Table, fkColumn)
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	metrics.RecordDBQuery("select", schema.Table, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("select from %s failed: %w", schema.Table, err)
	}
	defer closeWithLog(rows, "rows")

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByKind returns the number of rows stored for the kind.
func (db *DB) CountByKind(ctx context.Context, kind models.Kind) (int64, error) {
	schema := models.SchemaFor(kind)
	if schema == nil {
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.Table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s failed: %w", schema.Table, err)
	}
	return n, nil
}

// queryOneRow runs a query expected to return at most one entity row.
func (db *DB) queryOneRow(ctx context.Context, kind models.Kind, table, query string, args ...any) (*models.Row, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", table, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("select from %s failed: %w", table, err)
	}
	defer closeWithLog(rows, "rows")

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanRow(rows, kind)
}

// scanRow materializes the current result row into a models.Row, using
// the result set's column names as field keys.
func scanRow(rows *sql.Rows, kind models.Kind) (*models.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := &models.Row{Kind: kind, Fields: make(map[string]any, len(cols))}
	for i, col := range cols {
		v := values[i]
		if col == "id" {
			switch id := v.(type) {
			case int64:
				row.ID = id
			case int32:
				row.ID = int64(id)
			}
			continue
		}
		if v == nil {
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row.Fields[col] = v
	}
	return row, nil
}
