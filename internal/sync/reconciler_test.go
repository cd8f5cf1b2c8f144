// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/models"
)

func setupStore(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*models.EntityChanged
}

func (p *capturePublisher) PublishEntityChanged(_ context.Context, e *models.EntityChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) byChange(change models.ChangeKind) []*models.EntityChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.EntityChanged
	for _, e := range p.events {
		if e.Change == change {
			out = append(out, e)
		}
	}
	return out
}

func insertRepo(t *testing.T, db *database.DB, fullName string, remoteID int64) *models.Row {
	t.Helper()

	row := models.NewRow(models.KindRepository)
	row.Set("full_name", fullName)
	row.Set("name", fullName)
	row.Set("remote_id", remoteID)
	row.SetSyncState(models.SyncFetched)
	if _, err := db.Insert(context.Background(), row); err != nil {
		t.Fatalf("failed to insert repository %s: %v", fullName, err)
	}
	return row
}

func accountPayload(login string, id int64) map[string]any {
	return map[string]any{
		"id":         float64(id),
		"login":      login,
		"type":       "User",
		"updated_at": "2026-02-01T00:00:00Z",
	}
}

func TestReconcileCreates(t *testing.T) {
	db := setupStore(t)
	pub := &capturePublisher{}
	r := NewReconciler(db, pub)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Created || res.Row == nil || res.Row.ID == 0 {
		t.Fatalf("expected created row, got %+v", res)
	}
	if res.Row.RemoteID() != 55 {
		t.Errorf("remote_id = %d, want 55", res.Row.RemoteID())
	}
	if res.Row.SyncState() != models.SyncFetched {
		t.Errorf("sync_state = %s, want fetched", res.Row.SyncState())
	}
	if len(pub.byChange(models.ChangeCreated)) != 1 {
		t.Error("expected one created event")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	payload := accountPayload("alice", 55)
	if _, err := r.Reconcile(ctx, models.KindAccount, payload, nil, Options{}, NewCache()); err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}

	res, err := r.Reconcile(ctx, models.KindAccount, payload, nil, Options{ForceUpdate: true}, NewCache())
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if res.Created || len(res.Changed) != 0 {
		t.Errorf("second pass should change nothing, got %+v", res)
	}
}

func TestReconcileScopedUpdate(t *testing.T) {
	db := setupStore(t)
	pub := &capturePublisher{}
	r := NewReconciler(db, pub)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, NewCache()); err != nil {
		t.Fatalf("seed Reconcile failed: %v", err)
	}

	updated := accountPayload("alice", 55)
	updated["name"] = "Alice Cooper"
	updated["updated_at"] = "2026-02-02T00:00:00Z"

	res, err := r.Reconcile(ctx, models.KindAccount, updated, nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	want := map[string]bool{"display_name": true, "updated_at": true}
	if len(res.Changed) != 2 || !want[res.Changed[0]] || !want[res.Changed[1]] {
		t.Errorf("Changed = %v, want display_name and updated_at", res.Changed)
	}
	if len(pub.byChange(models.ChangeUpdated)) != 1 {
		t.Error("expected one updated event")
	}
}

func TestReconcileStalenessGuard(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, NewCache()); err != nil {
		t.Fatalf("seed Reconcile failed: %v", err)
	}

	stale := accountPayload("alice", 55)
	stale["name"] = "out of date rendering"
	stale["updated_at"] = "2026-01-01T00:00:00Z"

	res, err := r.Reconcile(ctx, models.KindAccount, stale, nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("stale payload should be skipped, got %+v", res)
	}

	forced, err := r.Reconcile(ctx, models.KindAccount, stale, nil, Options{ForceUpdate: true}, NewCache())
	if err != nil {
		t.Fatalf("forced Reconcile failed: %v", err)
	}
	if forced.Skipped || len(forced.Changed) == 0 {
		t.Errorf("force should bypass the staleness guard, got %+v", forced)
	}
}

func TestReconcilePendingMutationGuard(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	seed, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("seed Reconcile failed: %v", err)
	}
	if err := db.UpdateFields(ctx, models.KindAccount, seed.Row.ID, map[string]any{
		"sync_state": string(models.SyncAwaitingUpdate),
	}); err != nil {
		t.Fatalf("failed to mark row pending: %v", err)
	}

	fresh := accountPayload("alice", 55)
	fresh["name"] = "New Name"
	fresh["updated_at"] = "2026-03-01T00:00:00Z"

	res, err := r.Reconcile(ctx, models.KindAccount, fresh, nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Skipped {
		t.Fatal("row awaiting a local mutation must not be overwritten")
	}

	overridden, err := r.Reconcile(ctx, models.KindAccount, fresh, nil, Options{IgnoreState: true}, NewCache())
	if err != nil {
		t.Fatalf("IgnoreState Reconcile failed: %v", err)
	}
	if overridden.Skipped {
		t.Error("IgnoreState should bypass the pending-mutation guard")
	}
}

func TestReconcileModes(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{Modes: ModeUpdate}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Skipped {
		t.Error("update-only mode must not create rows")
	}

	if _, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{Modes: ModeCreate}, NewCache()); err != nil {
		t.Fatalf("create Reconcile failed: %v", err)
	}

	fresh := accountPayload("alice", 55)
	fresh["name"] = "Changed"
	fresh["updated_at"] = "2026-03-01T00:00:00Z"
	res, err = r.Reconcile(ctx, models.KindAccount, fresh, nil, Options{Modes: ModeCreate}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Skipped {
		t.Error("create-only mode must not update existing rows")
	}
}

func TestReconcileEmbeddedRelations(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()
	repo := insertRepo(t, db, "alice/widgets", 42)

	payload := map[string]any{
		"id":         float64(900),
		"number":     float64(7),
		"title":      "crash on startup",
		"state":      "open",
		"updated_at": "2026-02-01T10:00:00Z",
		"user":       accountPayload("bob", 66),
		"labels": []any{
			map[string]any{"id": float64(1), "name": "bug", "color": "ff0000"},
			map[string]any{"id": float64(2), "name": "p1", "color": "00ff00"},
		},
	}

	res, err := r.Reconcile(ctx, models.KindIssue, payload, ownerDefaults("repo_id", repo), Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Created {
		t.Fatal("issue should be created")
	}

	if _, err := db.GetByNaturalKey(ctx, models.KindAccount, map[string]any{"login": "bob"}); err != nil {
		t.Errorf("embedded author was not reconciled: %v", err)
	}
	if _, err := db.GetByNaturalKey(ctx, models.KindLabel, map[string]any{"repo_id": repo.ID, "name": "bug"}); err != nil {
		t.Errorf("embedded label was not reconciled: %v", err)
	}

	linked, err := db.LinkedIDs(ctx, "issue_labels", "issue_id", "label_id", res.Row.ID)
	if err != nil {
		t.Fatalf("LinkedIDs failed: %v", err)
	}
	if len(linked) != 2 {
		t.Errorf("linked labels = %d, want 2", len(linked))
	}
}

func TestReconcileEmbeddedListIsAuthoritative(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()
	repo := insertRepo(t, db, "alice/widgets", 42)

	base := map[string]any{
		"id":         float64(900),
		"number":     float64(7),
		"title":      "crash on startup",
		"state":      "open",
		"updated_at": "2026-02-01T10:00:00Z",
		"labels": []any{
			map[string]any{"id": float64(1), "name": "bug", "color": "ff0000"},
			map[string]any{"id": float64(2), "name": "p1", "color": "00ff00"},
		},
	}
	res, err := r.Reconcile(ctx, models.KindIssue, base, ownerDefaults("repo_id", repo), Options{}, NewCache())
	if err != nil {
		t.Fatalf("seed Reconcile failed: %v", err)
	}

	shrunk := map[string]any{
		"id":         float64(900),
		"number":     float64(7),
		"title":      "crash on startup",
		"state":      "open",
		"updated_at": "2026-02-02T10:00:00Z",
		"labels": []any{
			map[string]any{"id": float64(1), "name": "bug", "color": "ff0000"},
		},
	}
	if _, err := r.Reconcile(ctx, models.KindIssue, shrunk, ownerDefaults("repo_id", repo), Options{}, NewCache()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	linked, err := db.LinkedIDs(ctx, "issue_labels", "issue_id", "label_id", res.Row.ID)
	if err != nil {
		t.Fatalf("LinkedIDs failed: %v", err)
	}
	if len(linked) != 1 {
		t.Errorf("linked labels = %d, want 1 after the list shrank", len(linked))
	}
}

func TestReconcileCacheCollapsesRepeats(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()
	cache := NewCache()

	if _, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, cache); err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}
	res, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, cache)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if !res.Cached {
		t.Error("second reconcile of the same key should hit the batch cache")
	}
}

func TestReconcileSkipsUnresolvableRequiredRelation(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	// A comment without its mandatory issue cannot be placed.
	payload := map[string]any{
		"id":         float64(3000),
		"body":       "orphaned comment",
		"updated_at": "2026-02-01T10:00:00Z",
	}
	res, err := r.Reconcile(ctx, models.KindComment, payload, nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("comment without an issue should be skipped, got %+v", res)
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	row := models.NewRow(models.KindAccount)
	row.Set("updated_at", now)

	if isStale(row, map[string]any{"updated_at": now.Add(time.Hour)}) {
		t.Error("newer payload is not stale")
	}
	if isStale(row, map[string]any{"updated_at": now}) {
		t.Error("equal timestamp is not stale")
	}
	if !isStale(row, map[string]any{"updated_at": now.Add(-time.Hour)}) {
		t.Error("older payload is stale")
	}
	if isStale(row, map[string]any{}) {
		t.Error("payload without updated_at is never stale")
	}
}

func TestReconcileEqualTimestampStillApplies(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, NewCache()); err != nil {
		t.Fatalf("seed Reconcile failed: %v", err)
	}

	// Same second, different content: the later write must land.
	second := accountPayload("alice", 55)
	second["name"] = "Alice Cooper"

	res, err := r.Reconcile(ctx, models.KindAccount, second, nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Skipped {
		t.Fatalf("equal-timestamp payload should reconcile, got %+v", res)
	}
	if len(res.Changed) != 1 || res.Changed[0] != "display_name" {
		t.Errorf("Changed = %v, want display_name", res.Changed)
	}
}

func TestReconcileFollowsRemoteIDDrift(t *testing.T) {
	db := setupStore(t)
	r := NewReconciler(db, nil)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, models.KindAccount, accountPayload("alice", 55), nil, Options{}, NewCache()); err != nil {
		t.Fatalf("seed Reconcile failed: %v", err)
	}

	// The account was deleted and recreated remotely: same login, new
	// numeric ID.
	recreated := accountPayload("alice", 77)
	recreated["updated_at"] = "2026-02-02T00:00:00Z"

	res, err := r.Reconcile(ctx, models.KindAccount, recreated, nil, Options{}, NewCache())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Row.RemoteID() != 77 {
		t.Errorf("remote_id = %d, want 77", res.Row.RemoteID())
	}
	found := false
	for _, name := range res.Changed {
		if name == "remote_id" {
			found = true
		}
	}
	if !found {
		t.Errorf("Changed = %v, want remote_id reported", res.Changed)
	}

	stored, err := db.GetByNaturalKey(ctx, models.KindAccount, map[string]any{"login": "alice"})
	if err != nil {
		t.Fatalf("GetByNaturalKey failed: %v", err)
	}
	if stored.RemoteID() != 77 {
		t.Errorf("stored remote_id = %d, want 77", stored.RemoteID())
	}
}
