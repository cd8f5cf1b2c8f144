// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/* conflict.go - Identity Conflict Resolver
 *
 * Investigates unique-key collisions between an incoming remote item
 * and an existing local row. The local occupant is refetched directly
 * by its remote ID: a 404 means it no longer exists and is deleted, a
 * changed natural key means it moved and is rekeyed, and a genuine
 * collision is deferred for a later attempt.
 */
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/models"
)

// byIDPaths maps kinds to their direct by-remote-ID endpoints. Kinds
// without one cannot be investigated and defer immediately.
var byIDPaths = map[models.Kind]string{
	models.KindRepository: "/repositories/%d",
	models.KindAccount:    "/user/%d",
}

// ConflictOutcome reports what the resolver decided.
type ConflictOutcome struct {
	Resolution models.ConflictResolution

	// Deferred is true when the collision persists and should be
	// retried later with backoff.
	Deferred bool

	Note string
}

type ConflictResolver struct {
	store      *database.DB
	client     RemoteClient
	reconciler *Reconciler
	publisher  Publisher
}

func NewConflictResolver(store *database.DB, client RemoteClient, reconciler *Reconciler, publisher Publisher) *ConflictResolver {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &ConflictResolver{store: store, client: client, reconciler: reconciler, publisher: publisher}
}

// Resolve investigates one recorded conflict.
func (r *ConflictResolver) Resolve(ctx context.Context, conflict *models.IdentityConflict) (*ConflictOutcome, error) {
	log := logging.Ctx(ctx).With().
		Str("kind", string(conflict.Kind)).
		Interface("natural_key", conflict.NaturalKey).
		Logger()

	local, err := r.store.GetByNaturalKey(ctx, conflict.Kind, conflict.NaturalKey)
	if errors.Is(err, database.ErrNotFound) {
		// The occupant vanished since detection; the key is free.
		outcome := &ConflictOutcome{Resolution: models.ResolutionAdopted, Note: "occupant no longer present"}
		return outcome, r.finish(ctx, conflict, outcome)
	}
	if err != nil {
		return nil, fmt.Errorf("load conflict occupant: %w", err)
	}

	path, ok := byIDPaths[conflict.Kind]
	if !ok {
		log.Info().Msg("No by-ID endpoint for kind, deferring conflict")
		return &ConflictOutcome{Deferred: true, Note: "kind has no by-ID endpoint"}, nil
	}
	remoteID := local.RemoteID()
	if remoteID == 0 {
		return &ConflictOutcome{Deferred: true, Note: "occupant has no remote id"}, nil
	}

	obj, err := r.client.GetObject(ctx, fmt.Sprintf(path, remoteID), nil, ConditionalHeaders{})
	if errors.Is(err, ErrRemoteNotFound) {
		if err := r.store.DeleteByIDs(ctx, conflict.Kind, []int64{local.ID}); err != nil {
			return nil, fmt.Errorf("delete vanished occupant: %w", err)
		}
		r.publishDeleted(ctx, local)
		log.Info().Int64("remote_id", remoteID).Msg("Occupant deleted remotely, conflict resolved")
		outcome := &ConflictOutcome{Resolution: models.ResolutionDropped, Note: "occupant deleted remotely"}
		return outcome, r.finish(ctx, conflict, outcome)
	}
	if err != nil {
		return nil, fmt.Errorf("refetch occupant by id: %w", err)
	}

	fields, err := r.resolveFields(ctx, conflict.Kind, obj.Payload)
	if err != nil {
		return nil, err
	}
	schema := models.SchemaFor(conflict.Kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", conflict.Kind)
	}
	freshKey, err := naturalKeyFrom(schema, fields)
	if err != nil {
		return nil, fmt.Errorf("occupant payload missing natural key: %w", err)
	}

	if naturalKeysEqual(freshKey, conflict.NaturalKey) {
		log.Warn().Int64("remote_id", remoteID).Msg("Occupant still claims the key, deferring conflict")
		return &ConflictOutcome{Deferred: true, Note: "occupant still holds the key"}, nil
	}

	// The occupant moved; rewrite it under its new key so the incoming
	// item can claim the old one on the next pass.
	update := make(map[string]any, len(schema.NaturalKey)+2)
	for _, name := range schema.NaturalKey {
		update[name] = fields[name]
	}
	update["fetched_at"] = time.Now().UTC()
	if obj.ETag != "" {
		update["etag"] = obj.ETag
	}
	if err := r.store.UpdateFields(ctx, local.Kind, local.ID, update); err != nil {
		return nil, fmt.Errorf("rekey occupant: %w", err)
	}
	log.Info().
		Int64("remote_id", remoteID).
		Interface("new_key", freshKey).
		Msg("Occupant rekeyed, conflict resolved")
	outcome := &ConflictOutcome{Resolution: models.ResolutionRekeyed, Note: "occupant moved to a new key"}
	return outcome, r.finish(ctx, conflict, outcome)
}

// resolveFields maps the payload and resolves its to-one relations so
// composite natural keys compare against local column values.
func (r *ConflictResolver) resolveFields(ctx context.Context, kind models.Kind, payload map[string]any) (map[string]any, error) {
	mapped, err := r.reconciler.mapper.Map(kind, payload, nil)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(mapped.Simple))
	for name, value := range mapped.Simple {
		fields[name] = value
	}
	schema := models.SchemaFor(kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if err := r.reconciler.resolveFKs(ctx, schema, mapped, fields, Options{}, NewCache()); err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *ConflictResolver) finish(ctx context.Context, conflict *models.IdentityConflict, outcome *ConflictOutcome) error {
	return r.store.MarkConflictResolved(ctx, conflict, outcome.Resolution, outcome.Note)
}

func (r *ConflictResolver) publishDeleted(ctx context.Context, row *models.Row) {
	nk, _ := row.NaturalKey()
	event := &models.EntityChanged{
		Change:     models.ChangeDeleted,
		Kind:       row.Kind,
		LocalID:    row.ID,
		RemoteID:   row.RemoteID(),
		NaturalKey: nk,
		At:         time.Now().UTC(),
	}
	if err := r.publisher.PublishEntityChanged(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish deletion event")
	}
}

func naturalKeysEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		if !valuesEqual(av, b[name]) {
			return false
		}
	}
	return true
}
