// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Row is one locally stored entity instance. Fields holds scalar and FK
// column values keyed by local column name, including the sync metadata
// columns. A Row with New set has not been inserted yet and has no ID.
type Row struct {
	Kind   Kind
	ID     int64
	New    bool
	Fields map[string]any
}

// NewRow returns an empty, not yet persisted row of the given kind.
func NewRow(kind Kind) *Row {
	return &Row{Kind: kind, New: true, Fields: make(map[string]any)}
}

// Get returns the named field value and whether it is set.
func (r *Row) Get(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Set stores a field value.
func (r *Row) Set(name string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[name] = value
}

// String returns the named field as a string. Missing or NULL fields
// return the empty string.
func (r *Row) String(name string) string {
	if v, ok := r.Fields[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int64 returns the named field as an int64, converting the numeric types
// the database driver and the JSON decoder produce.
func (r *Row) Int64(name string) int64 {
	switch v := r.Fields[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

// Bool returns the named field as a bool.
func (r *Row) Bool(name string) bool {
	if v, ok := r.Fields[name].(bool); ok {
		return v
	}
	return false
}

// Time returns the named field as a UTC time. Missing, NULL or malformed
// values return the zero time.
func (r *Row) Time(name string) time.Time {
	switch v := r.Fields[name].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// RemoteID returns the remote primary identifier, or 0 when unknown.
func (r *Row) RemoteID() int64 {
	return r.Int64("remote_id")
}

// SyncState returns the row's synchronization state. Rows persisted before
// the column existed report SyncFetched.
func (r *Row) SyncState() SyncState {
	if s := r.String("sync_state"); s != "" {
		return SyncState(s)
	}
	return SyncFetched
}

// SetSyncState records a new synchronization state on the row.
func (r *Row) SetSyncState(s SyncState) {
	r.Set("sync_state", string(s))
}

// FetchedAt returns when the row was last confirmed against the remote.
func (r *Row) FetchedAt() time.Time {
	return r.Time("fetched_at")
}

// NaturalKey extracts the row's natural key values per its schema. The
// second return is false when any key column is unset.
func (r *Row) NaturalKey() (map[string]any, bool) {
	schema := SchemaFor(r.Kind)
	if schema == nil {
		return nil, false
	}
	key := make(map[string]any, len(schema.NaturalKey))
	for _, col := range schema.NaturalKey {
		v, ok := r.Fields[col]
		if !ok || v == nil {
			return nil, false
		}
		key[col] = v
	}
	return key, true
}

// CollectionMeta is the per-collection freshness state stored on an owning
// row: the last full-pass completion instant and one ETag per fetched
// parameter combination, keyed by the combination's canonical string.
type CollectionMeta struct {
	FetchedAt time.Time         `json:"fetched_at"`
	ETags     map[string]string `json:"etags,omitempty"`
}

// CollectionMetaMap decodes the row's collection_meta column. A missing or
// NULL column yields an empty map.
func (r *Row) CollectionMetaMap() map[string]*CollectionMeta {
	out := make(map[string]*CollectionMeta)
	raw := r.String("collection_meta")
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return make(map[string]*CollectionMeta)
	}
	return out
}

// SetCollectionMeta re-encodes the collection freshness map into the
// collection_meta column.
func (r *Row) SetCollectionMeta(meta map[string]*CollectionMeta) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	r.Set("collection_meta", string(buf))
	return nil
}
