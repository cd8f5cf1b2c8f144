// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
schema.go - Database Schema Management

This file manages the DuckDB schema: entity tables, link tables and
indexes.

Tables:
  - accounts, repositories, issues, comments, labels, milestones, commits:
    one table per mirrored entity kind, each carrying the sync metadata
    columns (remote_id, fetched_at, etag, sync_state, collection_meta)
  - issue_labels, issue_assignees, repo_contributors: many-to-many link
    tables
  - identity_conflicts: audit trail of natural key collisions and their
    resolutions

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements, which act
as the single source of truth. IDs come from per-table sequences so that
inserts can return the generated key via RETURNING.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates sequences, entity tables, link tables and indexes.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("schema statement failed: %w\nstatement: %s", err, q)
		}
	}
	return nil
}

// syncMetaColumns is appended to every entity table definition.
const syncMetaColumns = `
	remote_id BIGINT,
	fetched_at TIMESTAMP,
	etag VARCHAR,
	sync_state VARCHAR NOT NULL DEFAULT 'fetched',
	collection_meta VARCHAR`

var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_accounts START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_repositories START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_issues START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_comments START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_labels START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_milestones START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_commits START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_identity_conflicts START 1`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_accounts'),
		login VARCHAR NOT NULL,
		display_name VARCHAR,
		account_type VARCHAR,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,` + syncMetaColumns + `,
		UNIQUE (login)
	)`,

	`CREATE TABLE IF NOT EXISTS repositories (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_repositories'),
		full_name VARCHAR NOT NULL,
		name VARCHAR,
		description VARCHAR,
		private BOOLEAN,
		fork BOOLEAN,
		default_branch VARCHAR,
		language VARCHAR,
		stars BIGINT,
		forks BIGINT,
		open_issues BIGINT,
		pushed_at TIMESTAMP,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		owner_id BIGINT,` + syncMetaColumns + `,
		UNIQUE (full_name)
	)`,

	`CREATE TABLE IF NOT EXISTS issues (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_issues'),
		repo_id BIGINT NOT NULL,
		number BIGINT NOT NULL,
		title VARCHAR,
		body VARCHAR,
		state VARCHAR,
		locked BOOLEAN,
		comments_count BIGINT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		closed_at TIMESTAMP,
		author_id BIGINT,
		milestone_id BIGINT,` + syncMetaColumns + `,
		UNIQUE (repo_id, number)
	)`,

	`CREATE TABLE IF NOT EXISTS comments (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_comments'),
		issue_id BIGINT,
		author_id BIGINT,
		body VARCHAR,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,` + syncMetaColumns + `,
		UNIQUE (remote_id)
	)`,

	`CREATE TABLE IF NOT EXISTS labels (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_labels'),
		repo_id BIGINT NOT NULL,
		name VARCHAR NOT NULL,
		color VARCHAR,
		description VARCHAR,
		is_default BOOLEAN,` + syncMetaColumns + `,
		UNIQUE (repo_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS milestones (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_milestones'),
		repo_id BIGINT NOT NULL,
		number BIGINT NOT NULL,
		title VARCHAR,
		description VARCHAR,
		state VARCHAR,
		open_issues BIGINT,
		closed_issues BIGINT,
		due_on TIMESTAMP,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		closed_at TIMESTAMP,
		creator_id BIGINT,` + syncMetaColumns + `,
		UNIQUE (repo_id, number)
	)`,

	`CREATE TABLE IF NOT EXISTS commits (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_commits'),
		repo_id BIGINT NOT NULL,
		sha VARCHAR NOT NULL,
		message VARCHAR,
		authored_at TIMESTAMP,
		committed_at TIMESTAMP,
		parent_shas VARCHAR,
		author_id BIGINT,
		committer_id BIGINT,` + syncMetaColumns + `,
		UNIQUE (repo_id, sha)
	)`,

	`CREATE TABLE IF NOT EXISTS issue_labels (
		issue_id BIGINT NOT NULL,
		label_id BIGINT NOT NULL,
		PRIMARY KEY (issue_id, label_id)
	)`,

	`CREATE TABLE IF NOT EXISTS issue_assignees (
		issue_id BIGINT NOT NULL,
		account_id BIGINT NOT NULL,
		PRIMARY KEY (issue_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS repo_contributors (
		repo_id BIGINT NOT NULL,
		account_id BIGINT NOT NULL,
		PRIMARY KEY (repo_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS identity_conflicts (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_identity_conflicts'),
		kind VARCHAR NOT NULL,
		natural_key VARCHAR NOT NULL,
		local_id BIGINT,
		local_remote_id BIGINT,
		incoming_remote_id BIGINT,
		detected_at TIMESTAMP NOT NULL,
		resolution VARCHAR NOT NULL,
		note VARCHAR
	)`,

	`CREATE INDEX IF NOT EXISTS idx_repositories_owner ON repositories (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_repo ON issues (repo_id)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_state ON issues (repo_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments (issue_id)`,
	`CREATE INDEX IF NOT EXISTS idx_labels_repo ON labels (repo_id)`,
	`CREATE INDEX IF NOT EXISTS idx_milestones_repo ON milestones (repo_id)`,
	`CREATE INDEX IF NOT EXISTS idx_commits_repo ON commits (repo_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conflicts_kind ON identity_conflicts (kind, resolution)`,
}
