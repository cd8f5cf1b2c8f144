// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/* pager.go - Collection Page Fetcher
 *
 * Walks a descriptor's vary combinations, fetching each slice page by
 * page through the Link header with its own conditional request. Items
 * are reconciled as they arrive; the relation differ runs afterwards,
 * with removal enabled only when the walk observably saw the complete
 * remote membership.
 */
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

// PageOptions tunes one collection walk.
type PageOptions struct {
	// Force suppresses conditional headers so every page returns fresh
	// data.
	Force bool

	// MinDate stops the walk once items older than it appear. Honored
	// only when the descriptor's ordering makes the stop sound.
	MinDate time.Time

	// MaxPages caps the walk per combination. Zero means unlimited.
	MaxPages int

	PageSize int
}

// CollectionSyncResult summarizes one collection walk.
type CollectionSyncResult struct {
	Fetched     int
	Added       int
	Removed     int
	NotModified bool

	// Complete is true when every combination yielded its full fresh
	// membership, which is the precondition for removals.
	Complete bool

	// MemberIDs are the local IDs of every member seen this walk.
	MemberIDs []int64
}

// Pager fetches and reconciles member collections.
type Pager struct {
	client     RemoteClient
	store      *database.DB
	reconciler *Reconciler
	differ     *Differ
}

func NewPager(client RemoteClient, store *database.DB, reconciler *Reconciler) *Pager {
	return &Pager{
		client:     client,
		store:      store,
		reconciler: reconciler,
		differ:     reconciler.differ,
	}
}

// comboWalk is the outcome of paging one vary combination.
type comboWalk struct {
	memberIDs   []int64
	fetched     int
	notModified bool
	truncated   bool
	dateStopped bool
	etag        string
}

// SyncCollection walks every combination of desc for the owner row and
// converges the relation.
func (p *Pager) SyncCollection(ctx context.Context, owner *models.Row, desc *FetchDescriptor, subject string, opts PageOptions) (*CollectionSyncResult, error) {
	log := logging.Ctx(ctx)
	field := mustRelationField(owner.Kind, desc.Collection)
	meta := owner.CollectionMetaMap()[desc.Collection]
	startedAt := time.Now().UTC()

	result := &CollectionSyncResult{Complete: true}
	var allMembers []int64
	newETags := make(map[string]string)
	cache := NewCache()
	freshCombos := 0

	for _, combo := range desc.Combinations() {
		walk, err := p.walkCombo(ctx, desc, subject, combo, meta, opts, owner, cache)
		if err != nil {
			return nil, err
		}
		result.Fetched += walk.fetched
		if walk.notModified {
			metrics.GitHubNotModified.WithLabelValues(string(desc.MemberKind)).Inc()
			result.Complete = false
			continue
		}
		freshCombos++
		if walk.truncated || walk.dateStopped {
			result.Complete = false
		}
		allMembers = append(allMembers, walk.memberIDs...)
		// A truncated walk's page-1 ETag would make the next pass 304
		// and never reach the pages past the cap, so it is discarded.
		if walk.etag != "" && !walk.truncated {
			newETags[combo.Key] = walk.etag
		}
	}
	result.NotModified = freshCombos == 0

	result.MemberIDs = dedupeIDs(allMembers)

	// Removal needs every slice fetched fresh and untruncated; a
	// partial walk cannot prove absence.
	if len(result.MemberIDs) > 0 || result.Complete {
		added, removed, err := p.differ.Apply(ctx, owner, field, result.MemberIDs, result.Complete)
		if err != nil {
			return nil, err
		}
		result.Added, result.Removed = added, removed
	}

	if err := p.persistMeta(ctx, owner, desc.Collection, meta, newETags, startedAt, result.Complete); err != nil {
		return nil, err
	}

	log.Debug().
		Str("kind", string(owner.Kind)).
		Str("collection", desc.Collection).
		Str("subject", subject).
		Int("fetched", result.Fetched).
		Int("added", result.Added).
		Int("removed", result.Removed).
		Bool("complete", result.Complete).
		Msg("Collection sync finished")
	return result, nil
}

func (p *Pager) walkCombo(ctx context.Context, desc *FetchDescriptor, subject string, combo Combination, meta *models.CollectionMeta, opts PageOptions, owner *models.Row, cache *Cache) (*comboWalk, error) {
	walk := &comboWalk{}

	params := url.Values{}
	for k, vs := range desc.Params {
		params[k] = append([]string(nil), vs...)
	}
	for k, vs := range combo.Params {
		params[k] = append([]string(nil), vs...)
	}
	if opts.PageSize > 0 {
		params.Set("per_page", strconv.Itoa(opts.PageSize))
	}

	var etag string
	var fetchedAt time.Time
	if meta != nil {
		etag = meta.ETags[combo.Key]
		fetchedAt = meta.FetchedAt
	}

	defaults := ownerDefaults(desc.ParentFK, owner)

	path := desc.PathFor(subject)
	nextURL := ""
	for page := 1; ; page++ {
		cond := BuildConditional(fetchedAt, etag, opts.Force, page)
		target := path
		pageParams := params
		if nextURL != "" {
			target = nextURL
			pageParams = nil
		}

		res, err := p.client.GetPage(ctx, target, pageParams, cond)
		if err != nil {
			if errors.Is(err, ErrNotModified) {
				walk.notModified = true
				return walk, nil
			}
			return nil, fmt.Errorf("fetch %s page %d: %w", desc.Collection, page, err)
		}
		metrics.GitHubPagesFetched.WithLabelValues(string(desc.MemberKind), desc.Collection).Inc()
		if page == 1 {
			walk.etag = res.ETag
		}

		for _, item := range res.Items {
			if stop := p.dateStop(desc, opts, item); stop {
				walk.dateStopped = true
				break
			}
			rec, err := p.reconciler.Reconcile(ctx, desc.MemberKind, item, defaults, Options{FetchedAt: time.Now().UTC()}, cache)
			if err != nil {
				var conflictErr *ConflictError
				if errors.As(err, &conflictErr) {
					// Conflicts park the item; the resolver owns it now.
					continue
				}
				var valErr *ValidationError
				if errors.As(err, &valErr) {
					// One malformed payload must not sink the rest of
					// the page.
					logging.Ctx(ctx).Warn().
						Str("kind", string(desc.MemberKind)).
						Str("field", valErr.Field).
						Str("reason", valErr.Reason).
						Msg("Skipping item that failed validation")
					metrics.EntitiesReconciled.WithLabelValues(string(desc.MemberKind), "invalid").Inc()
					continue
				}
				return nil, err
			}
			walk.fetched++
			if rec.Skipped && rec.Row == nil {
				continue
			}
			walk.memberIDs = append(walk.memberIDs, rec.Row.ID)
		}

		if walk.dateStopped || res.NextURL == "" {
			return walk, nil
		}
		if opts.MaxPages > 0 && page >= opts.MaxPages {
			walk.truncated = true
			return walk, nil
		}
		nextURL = res.NextURL
	}
}

// dateStop reports whether item falls before the walk's minimum date.
// Valid only on endpoints that return newest first, otherwise older
// items may still follow.
func (p *Pager) dateStop(desc *FetchDescriptor, opts PageOptions, item map[string]any) bool {
	if opts.MinDate.IsZero() || desc.DateField == "" || !desc.DateDescending {
		return false
	}
	raw, ok := extractPath(item, desc.DateField)
	if !ok {
		return false
	}
	t, err := normalizeTime(raw)
	if err != nil {
		return false
	}
	return t.Before(opts.MinDate)
}

// persistMeta updates the owner's stored collection metadata. ETags are
// stored per combination; the collection timestamp advances only when
// the walk saw every slice, since a later conditional fetch keyed on it
// must not skip data the truncated walk never reached.
func (p *Pager) persistMeta(ctx context.Context, owner *models.Row, collection string, old *models.CollectionMeta, newETags map[string]string, startedAt time.Time, complete bool) error {
	if len(newETags) == 0 && !complete {
		return nil
	}
	meta := &models.CollectionMeta{ETags: make(map[string]string)}
	if old != nil {
		meta.FetchedAt = old.FetchedAt
		for k, v := range old.ETags {
			meta.ETags[k] = v
		}
	}
	for k, v := range newETags {
		meta.ETags[k] = v
	}
	if complete {
		meta.FetchedAt = startedAt
	}

	all := owner.CollectionMetaMap()
	if all == nil {
		all = make(map[string]*models.CollectionMeta)
	}
	all[collection] = meta
	if err := owner.SetCollectionMeta(all); err != nil {
		return fmt.Errorf("encode collection meta: %w", err)
	}
	raw, _ := owner.Get("collection_meta")
	if err := p.store.UpdateFields(ctx, owner.Kind, owner.ID, map[string]any{"collection_meta": raw}); err != nil {
		return fmt.Errorf("persist collection meta: %w", err)
	}
	return nil
}

// ownerDefaults pins the back-pointing FK on fetched members and, via
// the wildcard, on their own embedded payloads. Embedded labels on an
// issue need the repository key just as the issue itself does.
func ownerDefaults(parentFK string, owner *models.Row) *Defaults {
	if parentFK == "" {
		return nil
	}
	d := &Defaults{FK: map[string]*models.Row{parentFK: owner}}
	d.Nested = map[string]*Defaults{"*": d}
	return d
}

func mustRelationField(kind models.Kind, collection string) *models.Field {
	schema := models.SchemaFor(kind)
	if schema == nil {
		panic(fmt.Sprintf("unknown entity kind %q", kind))
	}
	field := schema.FieldByName(collection)
	if field == nil {
		panic(fmt.Sprintf("no relation %s on %s", collection, kind))
	}
	return field
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
