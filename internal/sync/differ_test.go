// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/models"
)

func insertIssue(t *testing.T, db *database.DB, repo *models.Row, number int64, remoteID int64) *models.Row {
	t.Helper()

	row := models.NewRow(models.KindIssue)
	row.Set("repo_id", repo.ID)
	row.Set("number", number)
	row.Set("title", "issue")
	row.Set("remote_id", remoteID)
	row.SetSyncState(models.SyncFetched)
	if _, err := db.Insert(context.Background(), row); err != nil {
		t.Fatalf("failed to insert issue #%d: %v", number, err)
	}
	return row
}

func insertLabel(t *testing.T, db *database.DB, repo *models.Row, name string) int64 {
	t.Helper()

	row := models.NewRow(models.KindLabel)
	row.Set("repo_id", repo.ID)
	row.Set("name", name)
	row.Set("color", "cccccc")
	row.SetSyncState(models.SyncFetched)
	id, err := db.Insert(context.Background(), row)
	if err != nil {
		t.Fatalf("failed to insert label %s: %v", name, err)
	}
	return id
}

func TestDifferLinksAddAndRemove(t *testing.T) {
	db := setupStore(t)
	d := NewDiffer(db, nil)
	ctx := context.Background()

	repo := insertRepo(t, db, "alice/widgets", 42)
	issue := insertIssue(t, db, repo, 7, 900)
	bug := insertLabel(t, db, repo, "bug")
	p1 := insertLabel(t, db, repo, "p1")
	wontfix := insertLabel(t, db, repo, "wontfix")

	field := models.SchemaFor(models.KindIssue).FieldByName("labels")

	added, removed, err := d.Apply(ctx, issue, field, []int64{bug, p1}, true)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if added != 2 || removed != 0 {
		t.Errorf("added=%d removed=%d, want 2, 0", added, removed)
	}

	added, removed, err = d.Apply(ctx, issue, field, []int64{p1, wontfix}, true)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if added != 1 || removed != 1 {
		t.Errorf("added=%d removed=%d, want 1, 1", added, removed)
	}

	linked, err := db.LinkedIDs(ctx, field.LinkTable, field.OwnerCol, field.MemberCol, issue.ID)
	if err != nil {
		t.Fatalf("LinkedIDs failed: %v", err)
	}
	want := map[int64]bool{p1: true, wontfix: true}
	if len(linked) != 2 || !want[linked[0]] || !want[linked[1]] {
		t.Errorf("linked = %v, want p1 and wontfix", linked)
	}
}

func TestDifferPartialFetchKeepsLinks(t *testing.T) {
	db := setupStore(t)
	d := NewDiffer(db, nil)
	ctx := context.Background()

	repo := insertRepo(t, db, "alice/widgets", 42)
	issue := insertIssue(t, db, repo, 7, 900)
	bug := insertLabel(t, db, repo, "bug")
	p1 := insertLabel(t, db, repo, "p1")

	field := models.SchemaFor(models.KindIssue).FieldByName("labels")
	if _, _, err := d.Apply(ctx, issue, field, []int64{bug, p1}, true); err != nil {
		t.Fatalf("seed Apply failed: %v", err)
	}

	// A partial fetch saw only one label; nothing may be unlinked.
	_, removed, err := d.Apply(ctx, issue, field, []int64{bug}, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 without removal authority", removed)
	}

	linked, err := db.LinkedIDs(ctx, field.LinkTable, field.OwnerCol, field.MemberCol, issue.ID)
	if err != nil {
		t.Fatalf("LinkedIDs failed: %v", err)
	}
	if len(linked) != 2 {
		t.Errorf("linked = %v, want both labels kept", linked)
	}
}

func TestDifferOrphansChildren(t *testing.T) {
	db := setupStore(t)
	pub := &capturePublisher{}
	d := NewDiffer(db, pub)
	ctx := context.Background()

	repo := insertRepo(t, db, "alice/widgets", 42)
	keep := insertIssue(t, db, repo, 1, 901)
	drop := insertIssue(t, db, repo, 2, 902)

	field := models.SchemaFor(models.KindRepository).FieldByName("issues")

	_, removed, err := d.Apply(ctx, repo, field, []int64{keep.ID}, true)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := db.GetByID(ctx, models.KindIssue, drop.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("orphaned issue should be deleted, err = %v", err)
	}
	if _, err := db.GetByID(ctx, models.KindIssue, keep.ID); err != nil {
		t.Errorf("kept issue should survive: %v", err)
	}
	if len(pub.byChange(models.ChangeDeleted)) != 1 {
		t.Error("expected one deleted event")
	}
}

func TestDiffIDSets(t *testing.T) {
	toAdd, toRemove := diffIDSets([]int64{1, 2, 3}, []int64{2, 3, 4})
	if len(toAdd) != 1 || toAdd[0] != 4 {
		t.Errorf("toAdd = %v, want [4]", toAdd)
	}
	if len(toRemove) != 1 || toRemove[0] != 1 {
		t.Errorf("toRemove = %v, want [1]", toRemove)
	}

	toAdd, toRemove = diffIDSets(nil, nil)
	if len(toAdd) != 0 || len(toRemove) != 0 {
		t.Error("empty sets diff to nothing")
	}
}
