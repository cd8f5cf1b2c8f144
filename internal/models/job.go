// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobDelayed  JobStatus = "delayed"
	JobCanceled JobStatus = "canceled"
	JobSuccess  JobStatus = "success"
	JobError    JobStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCanceled || s == JobSuccess || s == JobError
}

// Job is one unit of synchronization work. Jobs with equal identifiers are
// deduplicated by the queue; while a job for an identifier is queued or
// running, no second job for that identifier is admitted, which is the
// system's sole mutual exclusion over an entity.
type Job struct {
	// ID is the unique instance id assigned at enqueue time.
	ID string `json:"id"`

	// Identifier is the dedup key, "{kind}:{subject}" with an optional
	// "#{collection}" suffix for collection fetch jobs.
	Identifier string `json:"identifier"`

	Kind       Kind   `json:"kind"`
	Subject    string `json:"subject"`
	Collection string `json:"collection,omitempty"`

	// Operation names the work to perform, e.g. "fetch", "push",
	// "fetch_collection", "resync".
	Operation string `json:"operation"`

	// Priority orders ready jobs; higher runs first.
	Priority int `json:"priority"`

	// NotBefore delays execution until the given instant. Zero means
	// immediately eligible.
	NotBefore time.Time `json:"not_before,omitempty"`

	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"max_attempts"`

	Status    JobStatus `json:"status"`
	LastError string    `json:"last_error,omitempty"`

	// Payload carries operation parameters such as fetch variants or
	// webhook delivery bodies.
	Payload map[string]any `json:"payload,omitempty"`

	// CloneEvery, when positive, re-enqueues a copy of this job the given
	// duration after it finishes, forming a periodic resync chain.
	CloneEvery time.Duration `json:"clone_every,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// JobIdentifier renders the canonical dedup key for a kind, subject and
// optional collection name.
func JobIdentifier(kind Kind, subject, collection string) string {
	if collection == "" {
		return fmt.Sprintf("%s:%s", kind, subject)
	}
	return fmt.Sprintf("%s:%s#%s", kind, subject, collection)
}

// ParseJobIdentifier splits an identifier back into its parts.
func ParseJobIdentifier(id string) (kind Kind, subject, collection string, err error) {
	head, tail, found := strings.Cut(id, ":")
	if !found || head == "" || tail == "" {
		return "", "", "", fmt.Errorf("malformed job identifier %q", id)
	}
	subject, collection, _ = strings.Cut(tail, "#")
	return Kind(head), subject, collection, nil
}

// Merge folds a duplicate enqueue request into the existing job: the
// earlier eligibility instant and the higher priority win, and payload
// keys absent from the existing job are adopted.
func (j *Job) Merge(dup *Job) {
	if dup.Priority > j.Priority {
		j.Priority = dup.Priority
	}
	if dup.NotBefore.IsZero() || (!j.NotBefore.IsZero() && dup.NotBefore.Before(j.NotBefore)) {
		j.NotBefore = dup.NotBefore
	}
	if dup.CloneEvery > 0 && (j.CloneEvery == 0 || dup.CloneEvery < j.CloneEvery) {
		j.CloneEvery = dup.CloneEvery
	}
	for k, v := range dup.Payload {
		if _, ok := j.Payload[k]; !ok {
			if j.Payload == nil {
				j.Payload = make(map[string]any)
			}
			j.Payload[k] = v
		}
	}
}

// Clone returns a fresh queued copy of the job carrying over the fields
// that define the recurring work, with attempt counters and timing reset.
func (j *Job) Clone() *Job {
	payload := make(map[string]any, len(j.Payload))
	for k, v := range j.Payload {
		payload[k] = v
	}
	return &Job{
		Identifier:  j.Identifier,
		Kind:        j.Kind,
		Subject:     j.Subject,
		Collection:  j.Collection,
		Operation:   j.Operation,
		Priority:    j.Priority,
		MaxAttempts: j.MaxAttempts,
		Status:      JobQueued,
		Payload:     payload,
		CloneEvery:  j.CloneEvery,
	}
}
