// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

// Kind identifies a mirrored entity type.
type Kind string

const (
	KindAccount    Kind = "account"
	KindRepository Kind = "repository"
	KindIssue      Kind = "issue"
	KindComment    Kind = "comment"
	KindLabel      Kind = "label"
	KindMilestone  Kind = "milestone"
	KindCommit     Kind = "commit"
)

// FieldKind classifies a local field by how the mapper treats the
// corresponding remote value.
type FieldKind int

const (
	// FieldScalar is a plain value column (string, number, bool, timestamp).
	FieldScalar FieldKind = iota

	// FieldFK is a single nested remote object reconciled into its own
	// entity; the column stores the member's local primary key.
	FieldFK

	// FieldMany is a to-many collection (list in the payload or a reverse
	// foreign key) resolved after the owning entity has an identity.
	FieldMany
)

// Field describes one local field of an entity schema and its mapping from
// the remote payload.
type Field struct {
	// Name is the local column name.
	Name string

	// Kind classifies the field.
	Kind FieldKind

	// Remote is the remote JSON key. Empty means same as Name. Scalar
	// fields may use a dotted path ("commit.message") to reach into
	// nested non-entity objects.
	Remote string

	// Ref is the member entity kind for FK and Many fields.
	Ref Kind

	// IsTime marks scalar values parsed into timezone-naive UTC instants.
	IsTime bool

	// IsJSON marks scalar values stored as their JSON encoding (used for
	// opaque lists such as commit parent shas).
	IsJSON bool

	// LinkTable names the many-to-many link table. Empty on a Many field
	// means the relation is a reverse foreign key on the member table.
	LinkTable string

	// OwnerCol and MemberCol are the link table columns for LinkTable
	// relations.
	OwnerCol  string
	MemberCol string

	// FKColumn is the member-table column pointing back at the owner for
	// reverse-FK relations.
	FKColumn string

	// Nullable reports whether a member can exist without this owner.
	// Nullable relations are unlinked on removal; mandatory relations
	// hard-delete orphaned members.
	Nullable bool
}

// Schema describes the local shape of one entity kind. The mapper pulls
// values field by field, so remote keys with no schema field are dropped
// without being enumerated anywhere.
type Schema struct {
	Kind       Kind
	Table      string
	NaturalKey []string
	Fields     []Field

	byName map[string]*Field
}

// MetaColumns are the freshness columns present on every entity table,
// maintained by the reconciler and the page fetcher rather than the mapper.
// remote_id is not among them: it tracks the remote's current numeric ID
// and must follow payload drift like any other field.
var MetaColumns = []string{"fetched_at", "etag", "sync_state", "collection_meta"}

// FieldByName returns the field with the given local name, or nil.
func (s *Schema) FieldByName(name string) *Field {
	return s.byName[name]
}

func (s *Schema) finalize() *Schema {
	s.byName = make(map[string]*Field, len(s.Fields))
	for i := range s.Fields {
		s.byName[s.Fields[i].Name] = &s.Fields[i]
	}
	return s
}

// schemas is the registry of all entity schemas, keyed by kind.
var schemas = map[Kind]*Schema{
	KindAccount: (&Schema{
		Kind:       KindAccount,
		Table:      "accounts",
		NaturalKey: []string{"login"},
		Fields: []Field{
			{Name: "login", Kind: FieldScalar},
			{Name: "display_name", Kind: FieldScalar, Remote: "name"},
			{Name: "account_type", Kind: FieldScalar, Remote: "type"},
			{Name: "created_at", Kind: FieldScalar, IsTime: true},
			{Name: "updated_at", Kind: FieldScalar, IsTime: true},
		},
	}).finalize(),

	KindRepository: (&Schema{
		Kind:       KindRepository,
		Table:      "repositories",
		NaturalKey: []string{"full_name"},
		Fields: []Field{
			{Name: "full_name", Kind: FieldScalar},
			{Name: "name", Kind: FieldScalar},
			{Name: "description", Kind: FieldScalar},
			{Name: "private", Kind: FieldScalar},
			{Name: "fork", Kind: FieldScalar},
			{Name: "default_branch", Kind: FieldScalar},
			{Name: "language", Kind: FieldScalar},
			{Name: "stars", Kind: FieldScalar, Remote: "stargazers_count"},
			{Name: "forks", Kind: FieldScalar, Remote: "forks_count"},
			{Name: "open_issues", Kind: FieldScalar, Remote: "open_issues_count"},
			{Name: "pushed_at", Kind: FieldScalar, IsTime: true},
			{Name: "created_at", Kind: FieldScalar, IsTime: true},
			{Name: "updated_at", Kind: FieldScalar, IsTime: true},
			{Name: "owner_id", Kind: FieldFK, Remote: "owner", Ref: KindAccount},
			{Name: "issues", Kind: FieldMany, Ref: KindIssue, FKColumn: "repo_id"},
			{Name: "labels", Kind: FieldMany, Ref: KindLabel, FKColumn: "repo_id"},
			{Name: "milestones", Kind: FieldMany, Ref: KindMilestone, FKColumn: "repo_id"},
			{Name: "commits", Kind: FieldMany, Ref: KindCommit, FKColumn: "repo_id"},
			{Name: "contributors", Kind: FieldMany, Ref: KindAccount,
				LinkTable: "repo_contributors", OwnerCol: "repo_id", MemberCol: "account_id", Nullable: true},
		},
	}).finalize(),

	KindIssue: (&Schema{
		Kind:       KindIssue,
		Table:      "issues",
		NaturalKey: []string{"repo_id", "number"},
		Fields: []Field{
			{Name: "number", Kind: FieldScalar},
			{Name: "title", Kind: FieldScalar},
			{Name: "body", Kind: FieldScalar},
			{Name: "state", Kind: FieldScalar},
			{Name: "locked", Kind: FieldScalar},
			{Name: "comments_count", Kind: FieldScalar, Remote: "comments"},
			{Name: "created_at", Kind: FieldScalar, IsTime: true},
			{Name: "updated_at", Kind: FieldScalar, IsTime: true},
			{Name: "closed_at", Kind: FieldScalar, IsTime: true},
			{Name: "repo_id", Kind: FieldFK, Remote: "repository", Ref: KindRepository},
			{Name: "author_id", Kind: FieldFK, Remote: "user", Ref: KindAccount, Nullable: true},
			{Name: "milestone_id", Kind: FieldFK, Remote: "milestone", Ref: KindMilestone, Nullable: true},
			{Name: "labels", Kind: FieldMany, Ref: KindLabel,
				LinkTable: "issue_labels", OwnerCol: "issue_id", MemberCol: "label_id", Nullable: true},
			{Name: "assignees", Kind: FieldMany, Ref: KindAccount,
				LinkTable: "issue_assignees", OwnerCol: "issue_id", MemberCol: "account_id", Nullable: true},
			{Name: "comments_list", Kind: FieldMany, Ref: KindComment, FKColumn: "issue_id"},
		},
	}).finalize(),

	KindComment: (&Schema{
		Kind:       KindComment,
		Table:      "comments",
		NaturalKey: []string{"remote_id"},
		Fields: []Field{
			{Name: "body", Kind: FieldScalar},
			{Name: "created_at", Kind: FieldScalar, IsTime: true},
			{Name: "updated_at", Kind: FieldScalar, IsTime: true},
			{Name: "issue_id", Kind: FieldFK, Remote: "issue", Ref: KindIssue},
			{Name: "author_id", Kind: FieldFK, Remote: "user", Ref: KindAccount, Nullable: true},
		},
	}).finalize(),

	KindLabel: (&Schema{
		Kind:       KindLabel,
		Table:      "labels",
		NaturalKey: []string{"repo_id", "name"},
		Fields: []Field{
			{Name: "name", Kind: FieldScalar},
			{Name: "color", Kind: FieldScalar},
			{Name: "description", Kind: FieldScalar},
			{Name: "is_default", Kind: FieldScalar, Remote: "default"},
			{Name: "repo_id", Kind: FieldFK, Remote: "repository", Ref: KindRepository},
		},
	}).finalize(),

	KindMilestone: (&Schema{
		Kind:       KindMilestone,
		Table:      "milestones",
		NaturalKey: []string{"repo_id", "number"},
		Fields: []Field{
			{Name: "number", Kind: FieldScalar},
			{Name: "title", Kind: FieldScalar},
			{Name: "description", Kind: FieldScalar},
			{Name: "state", Kind: FieldScalar},
			{Name: "open_issues", Kind: FieldScalar},
			{Name: "closed_issues", Kind: FieldScalar},
			{Name: "due_on", Kind: FieldScalar, IsTime: true},
			{Name: "created_at", Kind: FieldScalar, IsTime: true},
			{Name: "updated_at", Kind: FieldScalar, IsTime: true},
			{Name: "closed_at", Kind: FieldScalar, IsTime: true},
			{Name: "repo_id", Kind: FieldFK, Remote: "repository", Ref: KindRepository},
			{Name: "creator_id", Kind: FieldFK, Remote: "creator", Ref: KindAccount, Nullable: true},
		},
	}).finalize(),

	KindCommit: (&Schema{
		Kind:       KindCommit,
		Table:      "commits",
		NaturalKey: []string{"repo_id", "sha"},
		Fields: []Field{
			{Name: "sha", Kind: FieldScalar},
			{Name: "message", Kind: FieldScalar, Remote: "commit.message"},
			{Name: "authored_at", Kind: FieldScalar, Remote: "commit.author.date", IsTime: true},
			{Name: "committed_at", Kind: FieldScalar, Remote: "commit.committer.date", IsTime: true},
			{Name: "parent_shas", Kind: FieldScalar, Remote: "parents", IsJSON: true},
			{Name: "repo_id", Kind: FieldFK, Remote: "repository", Ref: KindRepository},
			{Name: "author_id", Kind: FieldFK, Remote: "author", Ref: KindAccount, Nullable: true},
			{Name: "committer_id", Kind: FieldFK, Remote: "committer", Ref: KindAccount, Nullable: true},
		},
	}).finalize(),
}

// SchemaFor returns the schema for the given kind, or nil for unknown kinds.
func SchemaFor(k Kind) *Schema {
	return schemas[k]
}

// AllSchemas returns every registered schema. The order is unspecified.
func AllSchemas() []*Schema {
	out := make([]*Schema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s)
	}
	return out
}
