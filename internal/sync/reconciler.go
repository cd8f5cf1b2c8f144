// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/* reconciler.go - Payload Reconciliation Engine
 *
 * Takes classified payloads and converges local rows toward them.
 * To-one relations are reconciled before the owning row is written so
 * the FK column can be set in the same statement; member collections
 * are resolved only after the owner has its primary key. Updates are
 * scoped to fields that actually changed, plus freshness metadata.
 */
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

// Mode selects which write operations a reconcile pass may perform.
type Mode uint8

const (
	ModeCreate Mode = 1 << iota
	ModeUpdate

	ModeAll = ModeCreate | ModeUpdate
)

func (m Mode) Has(mode Mode) bool { return m&mode != 0 }

// Options tunes one reconcile call.
type Options struct {
	// Modes limits the pass to creating, updating, or both. Zero means
	// both.
	Modes Mode

	// ForceUpdate bypasses the staleness guard and rewrites matching
	// fields even when the remote payload is not newer.
	ForceUpdate bool

	// IgnoreState reconciles rows that are awaiting a local mutation.
	// Only the conflict resolver sets this.
	IgnoreState bool

	// FetchedAt stamps the row's freshness. Zero means time.Now.
	FetchedAt time.Time

	// ETag is persisted alongside the row when the payload came from a
	// direct single-object fetch.
	ETag string
}

func (o Options) modes() Mode {
	if o.Modes == 0 {
		return ModeAll
	}
	return o.Modes
}

// Result reports what one reconcile did.
type Result struct {
	Row *models.Row

	// Cached is true when the row came from the batch cache and no
	// statement ran.
	Cached bool

	// Created is true when the row was inserted this call.
	Created bool

	// Changed lists the field names a scoped update rewrote.
	Changed []string

	// Skipped is true when the item was deliberately not written;
	// SkipReason says why. Row may still carry the existing local row.
	Skipped    bool
	SkipReason string
}

// Cache memoizes reconciled rows for the duration of one batch so
// repeated embedded payloads (the same author on every comment, the
// same labels on every issue) hit the store once.
type Cache struct {
	rows map[string]*models.Row
}

func NewCache() *Cache {
	return &Cache{rows: make(map[string]*models.Row)}
}

func (c *Cache) key(kind models.Kind, nk map[string]any) string {
	names := make([]string, 0, len(nk))
	for name := range nk {
		names = append(names, name)
	}
	sort.Strings(names)
	key := string(kind)
	for _, name := range names {
		key += fmt.Sprintf("|%s=%v", name, nk[name])
	}
	return key
}

func (c *Cache) get(kind models.Kind, nk map[string]any) *models.Row {
	if c == nil {
		return nil
	}
	return c.rows[c.key(kind, nk)]
}

func (c *Cache) put(kind models.Kind, nk map[string]any, row *models.Row) {
	if c == nil {
		return
	}
	c.rows[c.key(kind, nk)] = row
}

// Reconciler converges local rows toward remote payloads.
type Reconciler struct {
	store     *database.DB
	mapper    *Mapper
	differ    *Differ
	publisher Publisher
}

func NewReconciler(store *database.DB, publisher Publisher) *Reconciler {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	r := &Reconciler{
		store:     store,
		mapper:    NewMapper(),
		publisher: publisher,
	}
	r.differ = NewDiffer(store, publisher)
	return r
}

// Reconcile maps payload and converges the matching local row. A nil
// cache is allowed; passing one shared Cache across a page of payloads
// collapses repeated embedded objects into single lookups.
func (r *Reconciler) Reconcile(ctx context.Context, kind models.Kind, payload map[string]any, defaults *Defaults, opts Options, cache *Cache) (*Result, error) {
	mapped, err := r.mapper.Map(kind, payload, defaults)
	if err != nil {
		return nil, err
	}
	return r.reconcileMapped(ctx, mapped, opts, cache)
}

func (r *Reconciler) reconcileMapped(ctx context.Context, mapped *Mapped, opts Options, cache *Cache) (*Result, error) {
	schema := models.SchemaFor(mapped.Kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", mapped.Kind)
	}
	log := logging.Ctx(ctx)

	fields := make(map[string]any, len(mapped.Simple))
	for name, value := range mapped.Simple {
		fields[name] = value
	}

	// To-one relations first: the owner's FK columns need the related
	// rows' primary keys.
	if err := r.resolveFKs(ctx, schema, mapped, fields, opts, cache); err != nil {
		if errors.Is(err, ErrUnresolvable) {
			log.Debug().Str("kind", string(mapped.Kind)).Err(err).Msg("Skipping item with unresolvable required relation")
			return &Result{Skipped: true, SkipReason: err.Error()}, nil
		}
		return nil, err
	}

	nk, err := naturalKeyFrom(schema, fields)
	if err != nil {
		return &Result{Skipped: true, SkipReason: err.Error()}, nil
	}

	if row := cache.get(mapped.Kind, nk); row != nil {
		return &Result{Row: row, Cached: true}, nil
	}

	existing, err := r.store.GetByNaturalKey(ctx, mapped.Kind, nk)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load %s by natural key: %w", mapped.Kind, err)
	}

	result, err := r.converge(ctx, schema, mapped, fields, existing, opts)
	if err != nil {
		return nil, err
	}
	if result.Row != nil {
		cache.put(mapped.Kind, nk, result.Row)
	}

	// Member collections run after the owner holds its primary key.
	if result.Row != nil && !result.Skipped {
		if err := r.resolveMany(ctx, result.Row, mapped.Many, opts, cache); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Reconciler) resolveFKs(ctx context.Context, schema *models.Schema, mapped *Mapped, fields map[string]any, opts Options, cache *Cache) error {
	for name, row := range mapped.FKRows {
		fields[name] = row.ID
	}
	for name, payload := range mapped.FK {
		field := schema.FieldByName(name)
		if field == nil {
			continue
		}
		if payload == nil {
			if !field.Nullable {
				return fmt.Errorf("%w: %s.%s cleared by remote", ErrUnresolvable, schema.Kind, name)
			}
			fields[name] = nil
			continue
		}
		related, err := r.Reconcile(ctx, field.Ref, payload, mapped.defaults.ForRelation(name), Options{
			Modes:     opts.modes(),
			FetchedAt: opts.FetchedAt,
		}, cache)
		if err != nil {
			return fmt.Errorf("reconcile %s.%s: %w", schema.Kind, name, err)
		}
		if related.Skipped || related.Row == nil {
			if !field.Nullable {
				return fmt.Errorf("%w: %s.%s: %s", ErrUnresolvable, schema.Kind, name, related.SkipReason)
			}
			fields[name] = nil
			continue
		}
		fields[name] = related.Row.ID
	}
	return nil
}

func (r *Reconciler) converge(ctx context.Context, schema *models.Schema, mapped *Mapped, fields map[string]any, existing *models.Row, opts Options) (*Result, error) {
	log := logging.Ctx(ctx)
	fetchedAt := opts.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	if existing == nil {
		if !opts.modes().Has(ModeCreate) {
			return &Result{Skipped: true, SkipReason: "row absent and create mode disabled"}, nil
		}
		if missing := missingRequiredFK(schema, fields); missing != "" {
			log.Debug().Str("kind", string(schema.Kind)).Str("field", missing).Msg("Skipping item missing a required relation")
			return &Result{Skipped: true, SkipReason: "required relation " + missing + " missing"}, nil
		}
		fields["fetched_at"] = fetchedAt
		fields["sync_state"] = string(models.SyncFetched)
		if opts.ETag != "" {
			fields["etag"] = opts.ETag
		}
		row := models.NewRow(schema.Kind)
		for name, value := range fields {
			row.Set(name, value)
		}
		if _, err := r.store.Insert(ctx, row); err != nil {
			if errors.Is(err, database.ErrUniqueViolation) {
				return nil, r.recordConflict(ctx, schema, fields, err)
			}
			return nil, fmt.Errorf("insert %s: %w", schema.Kind, err)
		}
		metrics.EntitiesReconciled.WithLabelValues(string(schema.Kind), "created").Inc()
		r.publishChange(ctx, models.ChangeCreated, row, nil)
		return &Result{Row: row, Created: true}, nil
	}

	if !opts.modes().Has(ModeUpdate) {
		return &Result{Row: existing, Skipped: true, SkipReason: "row exists and update mode disabled"}, nil
	}

	// Rows awaiting a local mutation are not overwritten by fetched
	// data; the pending write wins until it lands or fails.
	if existing.SyncState().IsAwaiting() && !opts.IgnoreState {
		metrics.EntitiesReconciled.WithLabelValues(string(schema.Kind), "pending_guard").Inc()
		return &Result{Row: existing, Skipped: true, SkipReason: "local mutation pending"}, nil
	}

	if !opts.ForceUpdate && isStale(existing, fields) {
		metrics.EntitiesReconciled.WithLabelValues(string(schema.Kind), "stale_guard").Inc()
		return &Result{Row: existing, Skipped: true, SkipReason: "payload not newer than local row"}, nil
	}

	changed := diffFields(existing, fields)
	if len(changed) == 0 {
		// Nothing moved; refresh freshness only.
		meta := map[string]any{"fetched_at": fetchedAt}
		if opts.ETag != "" {
			meta["etag"] = opts.ETag
		}
		if err := r.store.UpdateFields(ctx, existing.Kind, existing.ID, meta); err != nil {
			return nil, fmt.Errorf("refresh %s: %w", schema.Kind, err)
		}
		for name, value := range meta {
			existing.Set(name, value)
		}
		metrics.EntitiesReconciled.WithLabelValues(string(schema.Kind), "unchanged").Inc()
		return &Result{Row: existing}, nil
	}

	update := make(map[string]any, len(changed)+3)
	for _, name := range changed {
		update[name] = fields[name]
	}
	update["fetched_at"] = fetchedAt
	update["sync_state"] = string(models.SyncFetched)
	if opts.ETag != "" {
		update["etag"] = opts.ETag
	}
	if err := r.store.UpdateFields(ctx, existing.Kind, existing.ID, update); err != nil {
		if errors.Is(err, database.ErrUniqueViolation) {
			return nil, r.recordConflict(ctx, schema, fields, err)
		}
		return nil, fmt.Errorf("update %s: %w", schema.Kind, err)
	}
	for name, value := range update {
		existing.Set(name, value)
	}

	log.Debug().
		Str("kind", string(schema.Kind)).
		Int64("id", existing.ID).
		Strs("changed", changed).
		Msg("Updated entity from remote payload")
	metrics.EntitiesReconciled.WithLabelValues(string(schema.Kind), "updated").Inc()
	r.publishChange(ctx, models.ChangeUpdated, existing, changed)
	return &Result{Row: existing, Changed: changed}, nil
}

// resolveMany reconciles embedded member collections. An embedded list
// is a complete snapshot, so link tables are diffed with removal.
func (r *Reconciler) resolveMany(ctx context.Context, owner *models.Row, specs []CollectionSpec, opts Options, cache *Cache) error {
	for _, spec := range specs {
		memberIDs := make([]int64, 0, len(spec.Items))
		for _, item := range spec.Items {
			defaults := spec.Defaults
			if spec.Field.FKColumn != "" {
				defaults = withOwnerFK(defaults, spec.Field.FKColumn, owner)
			}
			res, err := r.Reconcile(ctx, spec.Field.Ref, item, defaults, Options{
				Modes:     opts.modes(),
				FetchedAt: opts.FetchedAt,
			}, cache)
			if err != nil {
				return fmt.Errorf("reconcile %s member: %w", spec.Field.Name, err)
			}
			if res.Skipped || res.Row == nil {
				continue
			}
			memberIDs = append(memberIDs, res.Row.ID)
		}
		if spec.Field.LinkTable != "" {
			if _, _, err := r.differ.Apply(ctx, owner, spec.Field, memberIDs, true); err != nil {
				return fmt.Errorf("diff %s links: %w", spec.Field.Name, err)
			}
		}
	}
	return nil
}

func withOwnerFK(base *Defaults, column string, owner *models.Row) *Defaults {
	out := &Defaults{
		FK: map[string]*models.Row{column: owner},
	}
	if base != nil {
		out.Simple = base.Simple
		out.Many = base.Many
		out.Nested = base.Nested
		for name, row := range base.FK {
			out.FK[name] = row
		}
	}
	return out
}

func (r *Reconciler) recordConflict(ctx context.Context, schema *models.Schema, fields map[string]any, cause error) error {
	conflict := &models.IdentityConflict{
		Kind:       schema.Kind,
		NaturalKey: naturalKeyOnly(schema, fields),
		DetectedAt: time.Now().UTC(),
		Resolution: models.ResolutionPending,
		Note:       cause.Error(),
	}
	if remoteID, ok := fields["remote_id"]; ok {
		if n, err := coerceInt64(remoteID); err == nil {
			conflict.IncomingRemote = n
		}
	}
	if err := r.store.RecordConflict(ctx, conflict); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("kind", string(schema.Kind)).Msg("Failed to record identity conflict")
	}
	return &ConflictError{Conflict: conflict}
}

func (r *Reconciler) publishChange(ctx context.Context, change models.ChangeKind, row *models.Row, changed []string) {
	nk, _ := row.NaturalKey()
	event := &models.EntityChanged{
		Change:     change,
		Kind:       row.Kind,
		LocalID:    row.ID,
		RemoteID:   row.RemoteID(),
		NaturalKey: nk,
		Changed:    changed,
		At:         time.Now().UTC(),
	}
	if err := r.publisher.PublishEntityChanged(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("kind", string(row.Kind)).Msg("Failed to publish entity change")
	}
}

// naturalKeyFrom validates every natural-key component is present.
func naturalKeyFrom(schema *models.Schema, fields map[string]any) (map[string]any, error) {
	nk := make(map[string]any, len(schema.NaturalKey))
	for _, name := range schema.NaturalKey {
		value, ok := fields[name]
		if !ok || value == nil {
			return nil, fmt.Errorf("natural key component %s.%s missing from payload", schema.Kind, name)
		}
		nk[name] = value
	}
	return nk, nil
}

func naturalKeyOnly(schema *models.Schema, fields map[string]any) map[string]any {
	nk := make(map[string]any, len(schema.NaturalKey))
	for _, name := range schema.NaturalKey {
		nk[name] = fields[name]
	}
	return nk
}

// missingRequiredFK returns the name of a mandatory relation column the
// payload failed to provide, or "".
func missingRequiredFK(schema *models.Schema, fields map[string]any) string {
	for i := range schema.Fields {
		f := &schema.Fields[i]
		if f.Kind != models.FieldFK || f.Nullable {
			continue
		}
		if v, ok := fields[f.Name]; !ok || v == nil {
			return f.Name
		}
	}
	return ""
}

// isStale reports whether the payload's updated_at is older than the
// local row's. Equal timestamps still reconcile: two writes can land
// inside the same second and the later payload must not be lost.
// Entities without updated_at are never stale.
func isStale(existing *models.Row, fields map[string]any) bool {
	incoming, ok := fields["updated_at"].(time.Time)
	if !ok {
		return false
	}
	local := existing.Time("updated_at")
	if local.IsZero() {
		return false
	}
	return incoming.Before(local)
}

// diffFields returns the names whose incoming values differ from the
// local row, in a stable order. Freshness metadata never counts.
func diffFields(existing *models.Row, fields map[string]any) []string {
	var changed []string
	for name, incoming := range fields {
		if isMetaField(name) {
			continue
		}
		current, _ := existing.Get(name)
		if !valuesEqual(current, incoming) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func isMetaField(name string) bool {
	for _, meta := range models.MetaColumns {
		if name == meta {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	an, aerr := coerceInt64(a)
	bn, berr := coerceInt64(b)
	if aerr == nil && berr == nil {
		return an == bn
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
