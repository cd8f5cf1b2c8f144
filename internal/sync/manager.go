// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/* manager.go - Synchronization Manager
 *
 * Executes queued sync jobs: full repository resyncs, single-entity
 * fetches, collection walks, conflict resolution and webhook-triggered
 * refreshes. The manager fans work out through the job queue rather
 * than recursing, so dedup applies at every level.
 */
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/models"
)

// ErrSubjectGone marks a job whose subject entity no longer exists
// locally. The queue cancels such jobs instead of retrying.
var ErrSubjectGone = errors.New("subject entity no longer exists")

// JobEnqueuer admits jobs into the queue. Satisfied by the jobs
// package's queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Manager owns the sync pipeline for all configured repositories.
type Manager struct {
	cfg        *config.Config
	store      *database.DB
	client     RemoteClient
	graphql    *GraphQLClient
	reconciler *Reconciler
	pager      *Pager
	resolver   *ConflictResolver
	queue      JobEnqueuer
}

func NewManager(cfg *config.Config, store *database.DB, client RemoteClient, graphql *GraphQLClient, publisher Publisher, queue JobEnqueuer) *Manager {
	reconciler := NewReconciler(store, publisher)
	return &Manager{
		cfg:        cfg,
		store:      store,
		client:     client,
		graphql:    graphql,
		reconciler: reconciler,
		pager:      NewPager(client, store, reconciler),
		resolver:   NewConflictResolver(store, client, reconciler, publisher),
		queue:      queue,
	}
}

// EnqueueInitialJobs seeds a periodic resync chain for every configured
// repository. Dedup makes this safe to call on every start.
func (m *Manager) EnqueueInitialJobs(ctx context.Context) error {
	for _, full := range m.cfg.GitHub.Repos {
		job := &models.Job{
			Identifier:  models.JobIdentifier(models.KindRepository, full, ""),
			Kind:        models.KindRepository,
			Subject:     full,
			Operation:   "resync",
			MaxAttempts: m.cfg.Jobs.MaxAttempts,
			CloneEvery:  m.cfg.Sync.Interval,
		}
		if err := m.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue resync for %s: %w", full, err)
		}
	}
	return nil
}

// Execute runs one job. Implements the queue's executor contract.
func (m *Manager) Execute(ctx context.Context, job *models.Job) error {
	switch job.Operation {
	case "resync":
		return m.resyncRepository(ctx, job)
	case "fetch":
		return m.fetchEntity(ctx, job)
	case "fetch_collection":
		return m.fetchCollection(ctx, job)
	case "resolve_conflict":
		return m.resolveConflict(ctx, job)
	case "webhook":
		return m.handleWebhook(ctx, job)
	case "backfill_issues":
		return m.backfillIssues(ctx, job)
	default:
		return fmt.Errorf("unknown job operation %q", job.Operation)
	}
}

func (m *Manager) resyncRepository(ctx context.Context, job *models.Job) error {
	log := logging.Ctx(ctx)
	force := payloadBool(job.Payload, "force")

	if err := m.fetchEntity(ctx, job); err != nil {
		return err
	}

	for _, desc := range DescriptorsFor(models.KindRepository) {
		collection := &models.Job{
			Identifier:  models.JobIdentifier(models.KindRepository, job.Subject, desc.Collection),
			Kind:        models.KindRepository,
			Subject:     job.Subject,
			Collection:  desc.Collection,
			Operation:   "fetch_collection",
			MaxAttempts: m.cfg.Jobs.MaxAttempts,
		}
		if force {
			collection.Payload = map[string]any{"force": true}
		}
		if err := m.queue.Enqueue(ctx, collection); err != nil {
			return fmt.Errorf("enqueue %s collection: %w", desc.Collection, err)
		}
	}
	if err := m.enqueuePendingConflicts(ctx); err != nil {
		return err
	}
	log.Info().Str("repo", job.Subject).Msg("Repository resync dispatched")
	return nil
}

// enqueuePendingConflicts schedules a resolution attempt for every
// conflict still awaiting one. Dedup collapses repeat sweeps.
func (m *Manager) enqueuePendingConflicts(ctx context.Context) error {
	conflicts, err := m.store.ListConflicts(ctx, 200)
	if err != nil {
		return fmt.Errorf("list conflicts: %w", err)
	}
	for _, c := range conflicts {
		if c.Resolution != models.ResolutionPending {
			continue
		}
		keyJSON, err := json.Marshal(c.NaturalKey)
		if err != nil {
			continue
		}
		job := &models.Job{
			Identifier:  models.JobIdentifier(c.Kind, string(keyJSON), "conflict"),
			Kind:        c.Kind,
			Subject:     string(keyJSON),
			Operation:   "resolve_conflict",
			MaxAttempts: m.cfg.Jobs.MaxAttempts,
			Payload: map[string]any{
				"kind":        string(c.Kind),
				"natural_key": c.NaturalKey,
			},
		}
		if err := m.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue conflict resolution: %w", err)
		}
	}
	return nil
}

func (m *Manager) fetchEntity(ctx context.Context, job *models.Job) error {
	force := payloadBool(job.Payload, "force")

	path, err := fetchPathFor(job.Kind, job.Subject)
	if err != nil {
		return err
	}
	existing, err := m.subjectRow(ctx, job.Kind, job.Subject)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	var etag string
	var fetchedAt time.Time
	if existing != nil {
		etag = existing.String("etag")
		fetchedAt = existing.FetchedAt()
	}

	obj, err := m.client.GetObject(ctx, path, nil, BuildConditional(fetchedAt, etag, force, 1))
	switch {
	case errors.Is(err, ErrNotModified):
		return nil
	case errors.Is(err, ErrRemoteNotFound):
		if existing == nil {
			return nil
		}
		if err := m.store.DeleteByIDs(ctx, job.Kind, []int64{existing.ID}); err != nil {
			return fmt.Errorf("delete removed %s: %w", job.Kind, err)
		}
		logging.Ctx(ctx).Info().
			Str("kind", string(job.Kind)).
			Str("subject", job.Subject).
			Msg("Entity removed upstream, deleted locally")
		return nil
	case err != nil:
		return err
	}

	defaults, err := m.subjectDefaults(ctx, job.Kind, job.Subject)
	if err != nil {
		return err
	}
	_, err = m.reconciler.Reconcile(ctx, job.Kind, obj.Payload, defaults, Options{
		ForceUpdate: force,
		ETag:        obj.ETag,
		FetchedAt:   time.Now().UTC(),
	}, NewCache())
	return err
}

func (m *Manager) fetchCollection(ctx context.Context, job *models.Job) error {
	owner, err := m.subjectRow(ctx, job.Kind, job.Subject)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrSubjectGone, job.Kind, job.Subject)
	}
	if err != nil {
		return err
	}

	desc := DescriptorFor(job.Kind, job.Collection)
	if desc == nil {
		return fmt.Errorf("no fetch descriptor for %s.%s", job.Kind, job.Collection)
	}

	opts := PageOptions{
		Force:    payloadBool(job.Payload, "force"),
		PageSize: m.cfg.Sync.PageSize,
		MaxPages: m.cfg.Sync.MaxPages,
	}
	if desc.MemberKind == models.KindCommit && m.cfg.Sync.CommitLookback > 0 {
		opts.MinDate = time.Now().UTC().Add(-m.cfg.Sync.CommitLookback)
	}

	result, err := m.pager.SyncCollection(ctx, owner, desc, job.Subject, opts)
	if err != nil {
		return err
	}

	// Fresh issues get their comment threads walked as separate jobs.
	if job.Kind == models.KindRepository && job.Collection == "issues" && !result.NotModified {
		if err := m.enqueueCommentJobs(ctx, job.Subject, result.MemberIDs, opts.Force); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) enqueueCommentJobs(ctx context.Context, repoSubject string, issueIDs []int64, force bool) error {
	for _, id := range issueIDs {
		issue, err := m.store.GetByID(ctx, models.KindIssue, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		number := issue.Int64("number")
		if number == 0 {
			continue
		}
		subject := issueSubject(repoSubject, number)
		job := &models.Job{
			Identifier:  models.JobIdentifier(models.KindIssue, subject, "comments_list"),
			Kind:        models.KindIssue,
			Subject:     subject,
			Collection:  "comments_list",
			Operation:   "fetch_collection",
			MaxAttempts: m.cfg.Jobs.MaxAttempts,
		}
		if force {
			job.Payload = map[string]any{"force": true}
		}
		if err := m.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue comments for %s: %w", subject, err)
		}
	}
	return nil
}

func (m *Manager) resolveConflict(ctx context.Context, job *models.Job) error {
	kindRaw, _ := job.Payload["kind"].(string)
	keyRaw, _ := job.Payload["natural_key"].(map[string]any)
	if kindRaw == "" || keyRaw == nil {
		return fmt.Errorf("resolve_conflict job missing kind or natural_key")
	}
	conflict := &models.IdentityConflict{
		Kind:       models.Kind(kindRaw),
		NaturalKey: keyRaw,
	}
	outcome, err := m.resolver.Resolve(ctx, conflict)
	if err != nil {
		return err
	}
	if outcome.Deferred {
		return &ConflictError{Conflict: conflict}
	}
	return nil
}

// backfillIssues refetches a specific set of issues in one GraphQL
// round trip instead of walking the whole collection.
func (m *Manager) backfillIssues(ctx context.Context, job *models.Job) error {
	if m.graphql == nil {
		return fmt.Errorf("backfill requires a GraphQL client")
	}
	rawNumbers, _ := job.Payload["numbers"].([]any)
	numbers := make([]int, 0, len(rawNumbers))
	for _, raw := range rawNumbers {
		if n, err := coerceInt64(raw); err == nil {
			numbers = append(numbers, int(n))
		}
	}
	if len(numbers) == 0 {
		return fmt.Errorf("backfill job has no issue numbers")
	}
	owner, name, found := strings.Cut(job.Subject, "/")
	if !found {
		return fmt.Errorf("malformed repository subject %q", job.Subject)
	}

	repo, err := m.store.GetByNaturalKey(ctx, models.KindRepository, map[string]any{"full_name": job.Subject})
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: repository %s", ErrSubjectGone, job.Subject)
	}
	if err != nil {
		return err
	}

	payloads, err := m.graphql.BatchFetchIssues(ctx, owner, name, numbers)
	if err != nil {
		return err
	}
	defaults := ownerDefaults("repo_id", repo)
	cache := NewCache()
	for number, payload := range payloads {
		if _, err := m.reconciler.Reconcile(ctx, models.KindIssue, payload, defaults, Options{
			FetchedAt: time.Now().UTC(),
		}, cache); err != nil {
			var conflictErr *ConflictError
			if errors.As(err, &conflictErr) {
				continue
			}
			return fmt.Errorf("reconcile backfilled issue %d: %w", number, err)
		}
	}
	return nil
}

// handleWebhook turns a delivery into a targeted collection refresh.
func (m *Manager) handleWebhook(ctx context.Context, job *models.Job) error {
	event, _ := job.Payload["event"].(string)
	delivery, _ := job.Payload["delivery"].(map[string]any)
	if delivery == nil {
		return fmt.Errorf("webhook job missing delivery payload")
	}
	fullName, ok := extractPath(delivery, "repository.full_name")
	repoFull, _ := fullName.(string)
	if !ok || repoFull == "" {
		logging.Ctx(ctx).Warn().Str("event", event).Msg("Webhook delivery without repository, ignoring")
		return nil
	}

	collection := ""
	switch event {
	case "issues", "issue_comment":
		collection = "issues"
	case "push":
		collection = "commits"
	case "label":
		collection = "labels"
	case "milestone":
		collection = "milestones"
	case "member":
		collection = "contributors"
	}

	operation := "fetch_collection"
	if collection == "" {
		operation = "resync"
	}
	next := &models.Job{
		Identifier:  models.JobIdentifier(models.KindRepository, repoFull, collection),
		Kind:        models.KindRepository,
		Subject:     repoFull,
		Collection:  collection,
		Operation:   operation,
		Priority:    1,
		MaxAttempts: m.cfg.Jobs.MaxAttempts,
	}
	if err := m.queue.Enqueue(ctx, next); err != nil {
		return fmt.Errorf("enqueue webhook follow-up: %w", err)
	}
	logging.Ctx(ctx).Debug().
		Str("event", event).
		Str("repo", repoFull).
		Str("operation", operation).
		Msg("Webhook delivery dispatched")
	return nil
}

// subjectRow loads the local row a job subject refers to.
func (m *Manager) subjectRow(ctx context.Context, kind models.Kind, subject string) (*models.Row, error) {
	nk, err := m.subjectNaturalKey(ctx, kind, subject)
	if err != nil {
		return nil, err
	}
	return m.store.GetByNaturalKey(ctx, kind, nk)
}

func (m *Manager) subjectNaturalKey(ctx context.Context, kind models.Kind, subject string) (map[string]any, error) {
	switch kind {
	case models.KindRepository:
		return map[string]any{"full_name": subject}, nil
	case models.KindAccount:
		return map[string]any{"login": subject}, nil
	case models.KindIssue:
		repoFull, number, err := splitIssueSubject(subject)
		if err != nil {
			return nil, err
		}
		repo, err := m.store.GetByNaturalKey(ctx, models.KindRepository, map[string]any{"full_name": repoFull})
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("%w: repository %s", ErrSubjectGone, repoFull)
			}
			return nil, err
		}
		return map[string]any{"repo_id": repo.ID, "number": number}, nil
	default:
		return nil, fmt.Errorf("kind %s has no subject form", kind)
	}
}

// subjectDefaults supplies the FK defaults a direct fetch needs, e.g.
// the owning repository for an issue subject.
func (m *Manager) subjectDefaults(ctx context.Context, kind models.Kind, subject string) (*Defaults, error) {
	if kind != models.KindIssue {
		return nil, nil
	}
	repoFull, _, err := splitIssueSubject(subject)
	if err != nil {
		return nil, err
	}
	repo, err := m.store.GetByNaturalKey(ctx, models.KindRepository, map[string]any{"full_name": repoFull})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: repository %s", ErrSubjectGone, repoFull)
		}
		return nil, err
	}
	return ownerDefaults("repo_id", repo), nil
}

func fetchPathFor(kind models.Kind, subject string) (string, error) {
	switch kind {
	case models.KindRepository, models.KindIssue:
		return "/repos/" + subject, nil
	case models.KindAccount:
		return "/users/" + subject, nil
	default:
		return "", fmt.Errorf("kind %s has no direct fetch endpoint", kind)
	}
}

// issueSubject renders the canonical issue subject, which doubles as
// the REST path fragment under /repos/.
func issueSubject(repoFull string, number int64) string {
	return fmt.Sprintf("%s/issues/%d", repoFull, number)
}

func splitIssueSubject(subject string) (string, int64, error) {
	repoFull, numberStr, found := strings.Cut(subject, "/issues/")
	if !found {
		return "", 0, fmt.Errorf("malformed issue subject %q", subject)
	}
	number, err := strconv.ParseInt(numberStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed issue number in subject %q", subject)
	}
	return repoFull, number, nil
}

func payloadBool(payload map[string]any, key string) bool {
	v, _ := payload[key].(bool)
	return v
}
