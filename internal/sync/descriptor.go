// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/octomirror/octomirror/internal/models"
)

// FetchDescriptor describes how one (owner kind, collection) pair is
// fetched from the remote API.
type FetchDescriptor struct {
	// Kind is the owning entity kind, Collection the relation field name
	// on its schema.
	Kind       models.Kind
	Collection string

	// Path is the endpoint template; the owner's subject string (e.g.
	// "alice/widgets" or "42") is substituted for %s.
	Path string

	// MemberKind is the entity kind of the fetched items.
	MemberKind models.Kind

	// ParentFK names the member's FK field the owner is injected into
	// via defaults. Empty for memberships with no back pointer.
	ParentFK string

	// Vary is the cartesian product of query parameters fetched as
	// separate slices, each with its own ETag.
	Vary map[string][]string

	// Params are fixed query parameters, typically sort and direction.
	Params url.Values

	// DateField is the remote key carrying the item's sort date; set
	// only when the endpoint returns items in DateDescending order, as
	// the min-date early stop is valid only then.
	DateField      string
	DateDescending bool
}

// PathFor renders the endpoint path for an owner subject.
func (d *FetchDescriptor) PathFor(subject string) string {
	return fmt.Sprintf(d.Path, subject)
}

// Combinations expands the vary product into concrete parameter sets,
// each paired with its canonical key. An empty vary yields the single
// empty combination keyed "".
func (d *FetchDescriptor) Combinations() []Combination {
	if len(d.Vary) == 0 {
		return []Combination{{Key: "", Params: url.Values{}}}
	}

	names := make([]string, 0, len(d.Vary))
	for name := range d.Vary {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []Combination{{Key: "", Params: url.Values{}}}
	for _, name := range names {
		next := make([]Combination, 0, len(combos)*len(d.Vary[name]))
		for _, combo := range combos {
			for _, value := range d.Vary[name] {
				params := url.Values{}
				for k, vs := range combo.Params {
					params[k] = append([]string(nil), vs...)
				}
				params.Set(name, value)

				key := name + "=" + value
				if combo.Key != "" {
					key = combo.Key + "&" + key
				}
				next = append(next, Combination{Key: key, Params: params})
			}
		}
		combos = next
	}
	return combos
}

// Combination is one point in a descriptor's vary product.
type Combination struct {
	// Key is the canonical "name=value&name=value" form used as the
	// ETag slot for this slice of the collection.
	Key    string
	Params url.Values
}

// descriptors registers every fetchable collection.
var descriptors = map[string]*FetchDescriptor{}

func registerDescriptor(d *FetchDescriptor) {
	descriptors[descriptorKey(d.Kind, d.Collection)] = d
}

func descriptorKey(kind models.Kind, collection string) string {
	return string(kind) + "#" + collection
}

// DescriptorFor returns the descriptor for an owner kind and collection
// name, or nil when the pair is not fetchable.
func DescriptorFor(kind models.Kind, collection string) *FetchDescriptor {
	return descriptors[descriptorKey(kind, collection)]
}

// DescriptorsFor returns every descriptor registered for the owner kind,
// in a stable order.
func DescriptorsFor(kind models.Kind) []*FetchDescriptor {
	var out []*FetchDescriptor
	for key, d := range descriptors {
		if strings.HasPrefix(key, string(kind)+"#") {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}

func init() {
	registerDescriptor(&FetchDescriptor{
		Kind:       models.KindRepository,
		Collection: "issues",
		Path:       "/repos/%s/issues",
		MemberKind: models.KindIssue,
		ParentFK:   "repo_id",
		Vary:       map[string][]string{"state": {"open", "closed"}},
		Params: url.Values{
			"sort":      {"updated"},
			"direction": {"desc"},
		},
		DateField:      "updated_at",
		DateDescending: true,
	})

	registerDescriptor(&FetchDescriptor{
		Kind:       models.KindRepository,
		Collection: "labels",
		Path:       "/repos/%s/labels",
		MemberKind: models.KindLabel,
		ParentFK:   "repo_id",
	})

	registerDescriptor(&FetchDescriptor{
		Kind:       models.KindRepository,
		Collection: "milestones",
		Path:       "/repos/%s/milestones",
		MemberKind: models.KindMilestone,
		ParentFK:   "repo_id",
		Vary:       map[string][]string{"state": {"open", "closed"}},
	})

	registerDescriptor(&FetchDescriptor{
		Kind:       models.KindRepository,
		Collection: "commits",
		Path:       "/repos/%s/commits",
		MemberKind: models.KindCommit,
		ParentFK:   "repo_id",
		// The commits endpoint returns newest first without sort params.
		DateField:      "commit.committer.date",
		DateDescending: true,
	})

	registerDescriptor(&FetchDescriptor{
		Kind:       models.KindRepository,
		Collection: "contributors",
		Path:       "/repos/%s/contributors",
		MemberKind: models.KindAccount,
	})

	registerDescriptor(&FetchDescriptor{
		Kind:       models.KindIssue,
		Collection: "comments_list",
		Path:       "/repos/%s/comments",
		MemberKind: models.KindComment,
		ParentFK:   "issue_id",
	})
}
