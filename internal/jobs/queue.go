// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

// Executor performs the work a job names. The sync manager is the one
// production implementation.
type Executor interface {
	Execute(ctx context.Context, job *models.Job) error
}

// Queue holds live jobs in memory, deduplicated by identifier, and mirrors
// every state change into the Store. It satisfies sync.JobEnqueuer.
type Queue struct {
	cfg   config.JobsConfig
	store *Store

	mu           sync.Mutex
	exec         Executor
	byID         map[string]*models.Job
	byIdentifier map[string]*models.Job

	// wake nudges idle workers after an enqueue or a retry reschedule.
	wake chan struct{}
}

// NewQueue builds a queue over the given store. The executor is attached
// separately because the sync manager and the queue reference each other.
func NewQueue(cfg config.JobsConfig, store *Store) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 15 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	return &Queue{
		cfg:          cfg,
		store:        store,
		byID:         make(map[string]*models.Job),
		byIdentifier: make(map[string]*models.Job),
		wake:         make(chan struct{}, 1),
	}
}

// SetExecutor attaches the executor that workers invoke. Must be called
// before Serve.
func (q *Queue) SetExecutor(exec Executor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exec = exec
}

// Enqueue admits a job, or merges it into the live job already holding its
// identifier. Merged requests surface the existing job through dedup: the
// caller's copy is discarded after its priority, eligibility and payload
// have been folded in.
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	q.mu.Lock()
	if existing, ok := q.byIdentifier[job.Identifier]; ok {
		existing.Merge(job)
		persist := *existing
		q.mu.Unlock()

		metrics.JobsDeduplicated.WithLabelValues(job.Operation).Inc()
		logging.Ctx(ctx).Debug().
			Str("identifier", job.Identifier).
			Str("merged_into", persist.ID).
			Msg("duplicate job merged")
		return q.store.Put(&persist)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}
	job.Status = models.JobQueued
	q.byID[job.ID] = job
	q.byIdentifier[job.Identifier] = job
	persist := *job
	q.updateGaugesLocked()
	q.mu.Unlock()

	metrics.JobsEnqueued.WithLabelValues(job.Operation).Inc()
	logging.Ctx(ctx).Debug().
		Str("job_id", job.ID).
		Str("identifier", job.Identifier).
		Str("operation", job.Operation).
		Msg("job enqueued")

	if err := q.store.Put(&persist); err != nil {
		return err
	}
	q.nudge()
	return nil
}

// Get returns a job by id, consulting the store for finished jobs no
// longer held in memory.
func (q *Queue) Get(id string) (*models.Job, error) {
	q.mu.Lock()
	if job, ok := q.byID[id]; ok {
		snapshot := *job
		q.mu.Unlock()
		return &snapshot, nil
	}
	q.mu.Unlock()
	return q.store.Get(id)
}

// List returns all known jobs, live first by priority then creation time,
// finished jobs after, newest first.
func (q *Queue) List() ([]*models.Job, error) {
	stored, err := q.store.All()
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	live := make(map[string]bool, len(q.byID))
	out := make([]*models.Job, 0, len(stored))
	for id, job := range q.byID {
		live[id] = true
		snapshot := *job
		out = append(out, &snapshot)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	var done []*models.Job
	for _, job := range stored {
		if !live[job.ID] {
			done = append(done, job)
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].FinishedAt.After(done[j].FinishedAt)
	})
	return append(out, done...), nil
}

// restore reloads live jobs from the store after a restart. Jobs caught
// mid-run are requeued from the start of their attempt.
func (q *Queue) restore() error {
	stored, err := q.store.All()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	restored := 0
	for _, job := range stored {
		if job.Status.Terminal() {
			continue
		}
		if job.Status == models.JobRunning {
			job.Status = models.JobQueued
			job.StartedAt = time.Time{}
		}
		q.byID[job.ID] = job
		q.byIdentifier[job.Identifier] = job
		restored++
	}
	q.updateGaugesLocked()
	if restored > 0 {
		logging.Info().Int("jobs", restored).Msg("restored persisted jobs")
	}
	return nil
}

// nudge wakes one idle worker without blocking.
func (q *Queue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) updateGaugesLocked() {
	pending, running := 0, 0
	for _, job := range q.byID {
		if job.Status == models.JobRunning {
			running++
		} else {
			pending++
		}
	}
	metrics.JobsPending.Set(float64(pending))
	metrics.JobsRunning.Set(float64(running))
}
