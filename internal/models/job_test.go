// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

import (
	"testing"
	"time"
)

func TestJobIdentifierRoundTrip(t *testing.T) {
	tests := []struct {
		kind       Kind
		subject    string
		collection string
		want       string
	}{
		{KindRepository, "alice/widgets", "", "repository:alice/widgets"},
		{KindRepository, "alice/widgets", "issues", "repository:alice/widgets#issues"},
		{KindIssue, "alice/widgets/issues/7", "comments_list", "issue:alice/widgets/issues/7#comments_list"},
	}
	for _, tt := range tests {
		id := JobIdentifier(tt.kind, tt.subject, tt.collection)
		if id != tt.want {
			t.Errorf("JobIdentifier = %q, want %q", id, tt.want)
		}
		kind, subject, collection, err := ParseJobIdentifier(id)
		if err != nil {
			t.Fatalf("ParseJobIdentifier(%q): %v", id, err)
		}
		if kind != tt.kind || subject != tt.subject || collection != tt.collection {
			t.Errorf("parsed %q -> %s/%s/%s", id, kind, subject, collection)
		}
	}

	for _, malformed := range []string{"", "repository", ":subject", "kind:"} {
		if _, _, _, err := ParseJobIdentifier(malformed); err == nil {
			t.Errorf("ParseJobIdentifier(%q) accepted malformed input", malformed)
		}
	}
}

func TestJobMerge(t *testing.T) {
	now := time.Now().UTC()
	existing := &Job{
		Priority:   1,
		NotBefore:  now.Add(time.Hour),
		CloneEvery: time.Hour,
		Payload:    map[string]any{"force": false},
	}
	dup := &Job{
		Priority:   3,
		NotBefore:  now.Add(time.Minute),
		CloneEvery: 30 * time.Minute,
		Payload:    map[string]any{"force": true, "extra": "x"},
	}

	existing.Merge(dup)

	if existing.Priority != 3 {
		t.Errorf("Priority = %d, want the higher of the two", existing.Priority)
	}
	if !existing.NotBefore.Equal(now.Add(time.Minute)) {
		t.Errorf("NotBefore = %v, want the earlier instant", existing.NotBefore)
	}
	if existing.CloneEvery != 30*time.Minute {
		t.Errorf("CloneEvery = %v, want the shorter interval", existing.CloneEvery)
	}
	if force, _ := existing.Payload["force"].(bool); force {
		t.Errorf("existing payload key overwritten by duplicate")
	}
	if existing.Payload["extra"] != "x" {
		t.Errorf("new payload key not adopted")
	}
}

func TestJobMergeImmediateEligibilityWins(t *testing.T) {
	existing := &Job{NotBefore: time.Now().Add(time.Hour)}
	existing.Merge(&Job{})
	if !existing.NotBefore.IsZero() {
		t.Errorf("immediate duplicate did not clear the delay")
	}
}

func TestJobClone(t *testing.T) {
	job := &Job{
		ID:          "original",
		Identifier:  "repository:alice/widgets",
		Kind:        KindRepository,
		Subject:     "alice/widgets",
		Operation:   "resync",
		Priority:    2,
		Attempt:     4,
		MaxAttempts: 5,
		Status:      JobSuccess,
		LastError:   "old failure",
		Payload:     map[string]any{"force": true},
		CloneEvery:  time.Hour,
		FinishedAt:  time.Now(),
	}

	clone := job.Clone()
	if clone.ID != "" || clone.Attempt != 0 || clone.LastError != "" {
		t.Errorf("clone kept per-run state: %+v", clone)
	}
	if clone.Status != JobQueued {
		t.Errorf("clone status = %s, want queued", clone.Status)
	}
	if clone.Identifier != job.Identifier || clone.CloneEvery != time.Hour {
		t.Errorf("clone lost recurring work definition")
	}

	clone.Payload["force"] = false
	if force, _ := job.Payload["force"].(bool); !force {
		t.Errorf("clone payload shares storage with the original")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobCanceled, JobSuccess, JobError}
	live := []JobStatus{JobQueued, JobRunning, JobDelayed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}

func TestSyncStateClassification(t *testing.T) {
	awaiting := []SyncState{SyncAwaitingCreate, SyncAwaitingUpdate, SyncAwaitingDelete}
	for _, s := range awaiting {
		if !s.IsAwaiting() || s.IsError() {
			t.Errorf("%s misclassified", s)
		}
	}
	errored := []SyncState{SyncErrCreate, SyncErrUpdate, SyncErrDelete, SyncErrFetch}
	for _, s := range errored {
		if !s.IsError() || s.IsAwaiting() {
			t.Errorf("%s misclassified", s)
		}
	}
	if SyncFetched.IsAwaiting() || SyncFetched.IsError() {
		t.Errorf("fetched misclassified")
	}
}
