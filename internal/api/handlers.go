// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/cache"
	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/jobs"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/models"
)

// JobService is the queue surface the handlers need.
type JobService interface {
	Enqueue(ctx context.Context, job *models.Job) error
	Get(id string) (*models.Job, error)
	List() ([]*models.Job, error)
}

// Handler serves the API endpoints.
type Handler struct {
	cfg       *config.Config
	store     *database.DB
	queue     JobService
	stats     *cache.Cache
	startedAt time.Time
}

// NewHandler builds the endpoint handler set.
func NewHandler(cfg *config.Config, store *database.DB, queue JobService) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		queue:     queue,
		stats:     cache.New(30 * time.Second),
		startedAt: time.Now().UTC(),
	}
}

// HealthLive always answers 200; the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady answers 200 once the database accepts queries.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeNotReady, "database unavailable")
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// Health reports overall status with uptime and database health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "ok"
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		dbStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	respondData(w, r, status, map[string]any{
		"status":         map[bool]string{true: "healthy", false: "degraded"}[status == http.StatusOK],
		"database":       dbStatus,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Stats reports per-kind row counts, cached briefly so dashboards can
// poll without hammering the store.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.stats.Get("entity_counts"); ok {
		respondData(w, r, http.StatusOK, cached)
		return
	}

	counts := make(map[string]int64)
	for _, schema := range models.AllSchemas() {
		n, err := h.store.CountByKind(r.Context(), schema.Kind)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternal, "count entities")
			return
		}
		counts[string(schema.Kind)] = n
	}

	data := map[string]any{"entities": counts}
	h.stats.Set("entity_counts", data)
	respondData(w, r, http.StatusOK, data)
}

type syncRequest struct {
	Repo  string `json:"repo,omitempty"`
	Force bool   `json:"force,omitempty"`
}

// TriggerSync enqueues a resync for one repository, or for every
// configured repository when none is named. Duplicate requests merge
// into the job already queued for each repository.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "malformed request body")
			return
		}
	}

	repos := h.cfg.GitHub.Repos
	if req.Repo != "" {
		repos = []string{req.Repo}
	}
	if len(repos) == 0 {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "no repositories configured")
		return
	}

	enqueued := make([]string, 0, len(repos))
	for _, repo := range repos {
		job := &models.Job{
			Identifier:  models.JobIdentifier(models.KindRepository, repo, ""),
			Kind:        models.KindRepository,
			Subject:     repo,
			Operation:   "resync",
			Priority:    2,
			MaxAttempts: h.cfg.Jobs.MaxAttempts,
			Payload:     map[string]any{"force": req.Force},
		}
		if err := h.queue.Enqueue(r.Context(), job); err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternal, "enqueue sync job")
			return
		}
		enqueued = append(enqueued, job.Identifier)
	}

	respondData(w, r, http.StatusAccepted, map[string]any{"enqueued": enqueued})
}

// Jobs lists live jobs first, then recent finished ones.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.queue.List()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "list jobs")
		return
	}
	respondData(w, r, http.StatusOK, map[string]any{"jobs": list, "count": len(list)})
}

// Job returns one job by id.
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.queue.Get(id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown job id")
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "load job")
		return
	}
	respondData(w, r, http.StatusOK, job)
}

// Conflicts lists recorded identity conflicts, pending first.
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "limit must be 1-1000")
			return
		}
		limit = n
	}

	conflicts, err := h.store.ListConflicts(r.Context(), limit)
	if err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("list conflicts")
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "list conflicts")
		return
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Resolution == models.ResolutionPending &&
			conflicts[j].Resolution != models.ResolutionPending
	})
	respondData(w, r, http.StatusOK, map[string]any{"conflicts": conflicts, "count": len(conflicts)})
}
