// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
	syncpkg "github.com/octomirror/octomirror/internal/sync"
)

// idlePoll bounds how long a worker sleeps when no job has a deadline,
// guarding against a missed wake signal.
const idlePoll = 5 * time.Second

// Serve restores persisted jobs and runs the worker pool until ctx is
// canceled. It satisfies suture's service contract.
func (q *Queue) Serve(ctx context.Context) error {
	if err := q.restore(); err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.sweep(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *Queue) worker(ctx context.Context) {
	for {
		job, wait := q.nextReady(time.Now().UTC())
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			case <-time.After(wait):
			}
			continue
		}
		q.run(ctx, job)
		if ctx.Err() != nil {
			return
		}
	}
}

// nextReady claims the best eligible job: highest priority, then oldest.
// When nothing is eligible it returns how long until the nearest delayed
// job becomes so.
func (q *Queue) nextReady(now time.Time) (*models.Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *models.Job
	wait := idlePoll
	for _, job := range q.byID {
		switch job.Status {
		case models.JobQueued, models.JobDelayed:
		default:
			continue
		}
		if !job.NotBefore.IsZero() && job.NotBefore.After(now) {
			if d := job.NotBefore.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		if best == nil ||
			job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, wait
	}

	best.Status = models.JobRunning
	best.StartedAt = now
	q.updateGaugesLocked()
	persist := *best
	if err := q.store.Put(&persist); err != nil {
		logging.Err(err).Str("job_id", best.ID).Msg("persist running job")
	}
	return best, 0
}

func (q *Queue) run(ctx context.Context, job *models.Job) {
	jobCtx := logging.ContextWithJobID(ctx, job.ID)
	log := logging.Ctx(jobCtx)
	log.Debug().
		Str("operation", job.Operation).
		Str("identifier", job.Identifier).
		Int("attempt", job.Attempt).
		Msg("job started")

	err := q.executor().Execute(jobCtx, job)
	q.finish(jobCtx, job, err)
}

func (q *Queue) executor() Executor {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.exec
}

// finish settles a completed execution: success clones recurring jobs,
// missing subjects cancel, and everything else follows the retry policy
// until attempts run out.
func (q *Queue) finish(ctx context.Context, job *models.Job, execErr error) {
	now := time.Now().UTC()
	duration := now.Sub(job.StartedAt)
	log := logging.Ctx(ctx)

	switch {
	case execErr == nil:
		q.settle(job, models.JobSuccess, "", now, duration)
		log.Info().
			Str("operation", job.Operation).
			Str("identifier", job.Identifier).
			Dur("duration", duration).
			Msg("job succeeded")
		if job.CloneEvery > 0 {
			clone := job.Clone()
			clone.NotBefore = now.Add(job.CloneEvery)
			if err := q.Enqueue(ctx, clone); err != nil {
				log.Err(err).Str("identifier", job.Identifier).Msg("schedule recurring job")
			}
		}

	case errors.Is(execErr, syncpkg.ErrSubjectGone):
		q.settle(job, models.JobCanceled, execErr.Error(), now, duration)
		log.Info().
			Str("operation", job.Operation).
			Str("identifier", job.Identifier).
			Msg("job canceled, subject gone")

	default:
		job.Attempt++
		job.LastError = execErr.Error()
		delay, reason, retry := planRetry(job, execErr, now, q.cfg.RetryDelay, q.cfg.MaxBackoff)
		if !retry || job.Attempt >= job.MaxAttempts {
			q.settle(job, models.JobError, execErr.Error(), now, duration)
			log.Err(execErr).
				Str("operation", job.Operation).
				Str("identifier", job.Identifier).
				Int("attempt", job.Attempt).
				Msg("job failed")
			return
		}

		q.mu.Lock()
		job.Status = models.JobDelayed
		job.NotBefore = now.Add(delay)
		q.updateGaugesLocked()
		persist := *job
		q.mu.Unlock()

		metrics.JobRetries.WithLabelValues(job.Operation, reason).Inc()
		log.Warn().
			Err(execErr).
			Str("operation", job.Operation).
			Str("identifier", job.Identifier).
			Str("reason", reason).
			Int("attempt", job.Attempt).
			Dur("delay", delay).
			Msg("job retry scheduled")
		if err := q.store.Put(&persist); err != nil {
			log.Err(err).Str("job_id", job.ID).Msg("persist delayed job")
		}
		q.nudge()
	}
}

// settle moves a job to a terminal status, frees its identifier for new
// work and persists the record with the retention TTL.
func (q *Queue) settle(job *models.Job, status models.JobStatus, lastError string, now time.Time, duration time.Duration) {
	q.mu.Lock()
	job.Status = status
	job.FinishedAt = now
	job.LastError = lastError
	delete(q.byID, job.ID)
	if q.byIdentifier[job.Identifier] == job {
		delete(q.byIdentifier, job.Identifier)
	}
	q.updateGaugesLocked()
	persist := *job
	q.mu.Unlock()

	metrics.RecordJobFinished(job.Operation, string(status), duration)
	if err := q.store.PutWithTTL(&persist, q.cfg.Retention); err != nil {
		logging.Err(err).Str("job_id", job.ID).Msg("persist finished job")
	}
}

// planRetry maps an execution error onto the retry schedule. Transient
// upstream failures wait a fixed short delay, rate limits wait out the
// provider's window, conflicts back off exponentially up to maxBackoff.
func planRetry(job *models.Job, execErr error, now time.Time, retryDelay, maxBackoff time.Duration) (time.Duration, string, bool) {
	switch syncpkg.ClassifyRetry(execErr) {
	case syncpkg.RetryShort:
		return retryDelay, "server_error", true
	case syncpkg.RetryRateWindow:
		var rateErr *syncpkg.RateLimitedError
		if errors.As(execErr, &rateErr) {
			return rateErr.Wait(now), "rate_limited", true
		}
		return retryDelay, "rate_limited", true
	case syncpkg.RetryExponential:
		delay := retryDelay
		for i := 1; i < job.Attempt; i++ {
			delay *= 2
			if delay >= maxBackoff {
				delay = maxBackoff
				break
			}
		}
		return delay, "conflict", true
	default:
		return 0, "", false
	}
}

// sweep periodically reclaims store space. Badger's TTLs expire finished
// jobs; the value log still needs explicit collection.
func (q *Queue) sweep(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.store.RunGC(); err != nil {
				logging.Err(err).Msg("job store gc")
			}
		}
	}
}
