// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/* differ.go - Relation Set Differ
 *
 * Converges one owner's relation toward a fetched member-ID set from a
 * single before-snapshot. Link-table memberships are unlinked when the
 * remote no longer lists them; rows whose FK to the owner is mandatory
 * are orphans once dropped remotely and are deleted outright.
 */
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

type Differ struct {
	store     *database.DB
	publisher Publisher
}

func NewDiffer(store *database.DB, publisher Publisher) *Differ {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Differ{store: store, publisher: publisher}
}

// Apply converges owner's relation field toward fetchedIDs. Removal of
// members absent from fetchedIDs happens only when doRemove is true;
// callers pass false when the fetched set is known to be partial.
// Returns the number of members added and removed.
func (d *Differ) Apply(ctx context.Context, owner *models.Row, field *models.Field, fetchedIDs []int64, doRemove bool) (int, int, error) {
	switch {
	case field.LinkTable != "":
		return d.applyLinks(ctx, owner, field, fetchedIDs, doRemove)
	case field.FKColumn != "":
		return d.applyChildren(ctx, owner, field, fetchedIDs, doRemove)
	default:
		return 0, 0, fmt.Errorf("field %s.%s is not a relation", owner.Kind, field.Name)
	}
}

func (d *Differ) applyLinks(ctx context.Context, owner *models.Row, field *models.Field, fetchedIDs []int64, doRemove bool) (int, int, error) {
	current, err := d.store.LinkedIDs(ctx, field.LinkTable, field.OwnerCol, field.MemberCol, owner.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("load %s links: %w", field.Name, err)
	}
	toAdd, toRemove := diffIDSets(current, fetchedIDs)
	if !doRemove {
		toRemove = nil
	}

	if len(toAdd) > 0 {
		if err := d.store.AddLinks(ctx, field.LinkTable, field.OwnerCol, field.MemberCol, owner.ID, toAdd); err != nil {
			return 0, 0, fmt.Errorf("add %s links: %w", field.Name, err)
		}
		metrics.RelationOps.WithLabelValues(string(owner.Kind), field.Name, "link").Add(float64(len(toAdd)))
		d.publishRelation(ctx, models.ChangeLinked, owner, field, toAdd)
	}
	if len(toRemove) > 0 {
		if err := d.store.RemoveLinks(ctx, field.LinkTable, field.OwnerCol, field.MemberCol, owner.ID, toRemove); err != nil {
			return 0, 0, fmt.Errorf("remove %s links: %w", field.Name, err)
		}
		metrics.RelationOps.WithLabelValues(string(owner.Kind), field.Name, "unlink").Add(float64(len(toRemove)))
		d.publishRelation(ctx, models.ChangeUnlinked, owner, field, toRemove)
	}
	return len(toAdd), len(toRemove), nil
}

// applyChildren handles reverse-FK collections. Members carry the
// owner's key in a mandatory column, so a member dropped remotely has
// no valid owner left and is deleted rather than unlinked.
func (d *Differ) applyChildren(ctx context.Context, owner *models.Row, field *models.Field, fetchedIDs []int64, doRemove bool) (int, int, error) {
	current, err := d.store.ChildIDs(ctx, field.Ref, field.FKColumn, owner.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("load %s children: %w", field.Name, err)
	}
	added, toRemove := diffIDSets(current, fetchedIDs)
	if !doRemove || len(toRemove) == 0 {
		return len(added), 0, nil
	}

	if err := d.store.DeleteByIDs(ctx, field.Ref, toRemove); err != nil {
		return 0, 0, fmt.Errorf("delete orphaned %s: %w", field.Ref, err)
	}
	logging.Ctx(ctx).Info().
		Str("kind", string(owner.Kind)).
		Int64("owner_id", owner.ID).
		Str("relation", field.Name).
		Int("removed", len(toRemove)).
		Msg("Deleted members no longer present remotely")
	metrics.RelationOps.WithLabelValues(string(owner.Kind), field.Name, "delete").Add(float64(len(toRemove)))
	d.publishRelation(ctx, models.ChangeDeleted, owner, field, toRemove)
	return len(added), len(toRemove), nil
}

func (d *Differ) publishRelation(ctx context.Context, change models.ChangeKind, owner *models.Row, field *models.Field, memberIDs []int64) {
	event := &models.EntityChanged{
		Change:    change,
		Kind:      owner.Kind,
		LocalID:   owner.ID,
		RemoteID:  owner.RemoteID(),
		Relation:  field.Name,
		MemberIDs: memberIDs,
		At:        time.Now().UTC(),
	}
	if err := d.publisher.PublishEntityChanged(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("relation", field.Name).Msg("Failed to publish relation change")
	}
}

// diffIDSets computes additions and removals between the current and
// fetched sets in one pass over each.
func diffIDSets(current, fetched []int64) (toAdd, toRemove []int64) {
	have := make(map[int64]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[int64]struct{}, len(fetched))
	for _, id := range fetched {
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if _, ok := want[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}
