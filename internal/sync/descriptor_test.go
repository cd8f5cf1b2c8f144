// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"testing"

	"github.com/octomirror/octomirror/internal/models"
)

func TestDescriptorCombinations(t *testing.T) {
	d := &FetchDescriptor{
		Vary: map[string][]string{
			"state": {"open", "closed"},
		},
	}

	combos := d.Combinations()
	if len(combos) != 2 {
		t.Fatalf("len(combos) = %d, want 2", len(combos))
	}
	if combos[0].Key != "state=open" || combos[1].Key != "state=closed" {
		t.Errorf("combo keys = %q, %q", combos[0].Key, combos[1].Key)
	}
	if got := combos[0].Params.Get("state"); got != "open" {
		t.Errorf("combo params state = %q, want open", got)
	}
}

func TestDescriptorCombinationsProduct(t *testing.T) {
	d := &FetchDescriptor{
		Vary: map[string][]string{
			"state": {"open", "closed"},
			"type":  {"bug", "task"},
		},
	}

	combos := d.Combinations()
	if len(combos) != 4 {
		t.Fatalf("len(combos) = %d, want 4", len(combos))
	}
	// Vary names are walked in sorted order, so keys are deterministic.
	want := map[string]bool{
		"state=open&type=bug":    true,
		"state=open&type=task":   true,
		"state=closed&type=bug":  true,
		"state=closed&type=task": true,
	}
	for _, combo := range combos {
		if !want[combo.Key] {
			t.Errorf("unexpected combo key %q", combo.Key)
		}
	}
}

func TestDescriptorCombinationsEmpty(t *testing.T) {
	d := &FetchDescriptor{}
	combos := d.Combinations()
	if len(combos) != 1 || combos[0].Key != "" {
		t.Fatalf("empty vary should yield the single unkeyed combination, got %+v", combos)
	}
}

func TestDescriptorRegistry(t *testing.T) {
	issues := DescriptorFor(models.KindRepository, "issues")
	if issues == nil {
		t.Fatal("repository issues descriptor missing")
	}
	if got := issues.PathFor("alice/widgets"); got != "/repos/alice/widgets/issues" {
		t.Errorf("PathFor = %q", got)
	}
	if !issues.DateDescending || issues.DateField != "updated_at" {
		t.Error("issues descriptor should support the updated-date early stop")
	}

	comments := DescriptorFor(models.KindIssue, "comments_list")
	if comments == nil {
		t.Fatal("issue comments descriptor missing")
	}
	if got := comments.PathFor("alice/widgets/issues/7"); got != "/repos/alice/widgets/issues/7/comments" {
		t.Errorf("comments PathFor = %q", got)
	}

	if DescriptorFor(models.KindRepository, "nonexistent") != nil {
		t.Error("unknown collection should have no descriptor")
	}

	repoDescs := DescriptorsFor(models.KindRepository)
	if len(repoDescs) != 5 {
		t.Errorf("repository descriptor count = %d, want 5", len(repoDescs))
	}
}
