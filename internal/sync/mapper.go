// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/* mapper.go - Remote Payload Field Mapper
 *
 * Classifies a raw API payload against an entity schema into three
 * buckets: scalar values assignable now, foreign-key payloads the
 * reconciler resolves before the owner is written, and member
 * collections resolved only after the owner has its primary key.
 * Defaults injected by the caller override missing or null remote
 * values and cascade into nested payloads.
 */
//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/models"
)

// Defaults carries caller-supplied field values layered under a mapped
// payload. Nested holds defaults for relation payloads by field name;
// the "*" key applies to every relation that has no entry of its own.
type Defaults struct {
	// Simple values fill scalar fields absent from the payload.
	Simple map[string]any

	// FK pins a relation to an already-reconciled row, bypassing the
	// remote payload for that field entirely.
	FK map[string]*models.Row

	// Many supplies member collections absent from the payload, keyed by
	// field name. A collection the payload does carry wins.
	Many map[string][]map[string]any

	Nested map[string]*Defaults
}

// ForRelation returns the defaults to cascade into the named relation's
// payloads, falling back to the wildcard entry.
func (d *Defaults) ForRelation(name string) *Defaults {
	if d == nil {
		return nil
	}
	if nested, ok := d.Nested[name]; ok {
		return nested
	}
	return d.Nested["*"]
}

// CollectionSpec is a deferred member collection: the items cannot be
// reconciled until the owning row exists, because each member needs the
// owner's primary key injected through Defaults.
type CollectionSpec struct {
	Field    *models.Field
	Items    []map[string]any
	Defaults *Defaults
}

// Mapped is the classification of one payload.
type Mapped struct {
	Kind models.Kind

	// Simple holds scalar column values, normalized and ready to write.
	Simple map[string]any

	// FK holds raw payloads for to-one relations, keyed by field name.
	// A nil payload means the remote explicitly cleared the relation.
	FK map[string]map[string]any

	// FKRows holds to-one relations pinned by defaults.
	FKRows map[string]*models.Row

	// Many holds deferred member collections.
	Many []CollectionSpec

	// defaults is the tree the payload was mapped under, retained so FK
	// payload reconciliation can cascade into it.
	defaults *Defaults
}

// Mapper classifies remote payloads against the schema registry.
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

// Map classifies payload for the given kind. Unknown keys, transport
// noise and freshness metadata are dropped; defaults fill the gaps.
func (m *Mapper) Map(kind models.Kind, payload map[string]any, defaults *Defaults) (*Mapped, error) {
	schema := models.SchemaFor(kind)
	if schema == nil {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	mapped := &Mapped{
		Kind:     kind,
		Simple:   make(map[string]any),
		FK:       make(map[string]map[string]any),
		FKRows:   make(map[string]*models.Row),
		defaults: defaults,
	}

	for i := range schema.Fields {
		field := &schema.Fields[i]
		switch field.Kind {
		case models.FieldScalar:
			value, ok := extractPath(payload, remoteKey(field))
			if !ok || value == nil {
				if dv, has := defaultSimple(defaults, field.Name); has {
					mapped.Simple[field.Name] = dv
				} else if ok {
					mapped.Simple[field.Name] = nil
				}
				continue
			}
			normalized, err := normalizeScalar(field, value)
			if err != nil {
				return nil, &ValidationError{Kind: kind, Field: field.Name, Reason: err.Error()}
			}
			mapped.Simple[field.Name] = normalized

		case models.FieldFK:
			if row := defaultFK(defaults, field.Name); row != nil {
				mapped.FKRows[field.Name] = row
				continue
			}
			value, ok := extractPath(payload, remoteKey(field))
			if !ok {
				continue
			}
			if value == nil {
				mapped.FK[field.Name] = nil
				continue
			}
			nested, ok := value.(map[string]any)
			if !ok {
				return nil, &ValidationError{Kind: kind, Field: field.Name, Reason: fmt.Sprintf("relation payload is %T, not an object", value)}
			}
			mapped.FK[field.Name] = nested

		case models.FieldMany:
			value, ok := extractPath(payload, remoteKey(field))
			if !ok {
				if dv := defaultMany(defaults, field.Name); dv != nil {
					mapped.Many = append(mapped.Many, CollectionSpec{
						Field:    field,
						Items:    dv,
						Defaults: defaults.ForRelation(field.Name),
					})
				}
				continue
			}
			items, err := coerceItemList(value)
			if err != nil {
				return nil, &ValidationError{Kind: kind, Field: field.Name, Reason: err.Error()}
			}
			mapped.Many = append(mapped.Many, CollectionSpec{
				Field:    field,
				Items:    items,
				Defaults: defaults.ForRelation(field.Name),
			})
		}
	}

	// remote_id rides along as sync metadata rather than a schema field.
	if id, ok := payload["id"]; ok {
		if n, err := coerceInt64(id); err == nil {
			mapped.Simple["remote_id"] = n
		}
	}

	return mapped, nil
}

// defaultSimple also accepts wildcard-free direct hits only; wildcard
// semantics apply to relations, not scalar names.
func defaultSimple(d *Defaults, name string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.Simple[name]
	return v, ok
}

func defaultFK(d *Defaults, name string) *models.Row {
	if d == nil {
		return nil
	}
	return d.FK[name]
}

func defaultMany(d *Defaults, name string) []map[string]any {
	if d == nil {
		return nil
	}
	return d.Many[name]
}

func remoteKey(field *models.Field) string {
	if field.Remote != "" {
		return field.Remote
	}
	return field.Name
}

// extractPath resolves a dotted remote key against nested payload
// objects. A missing intermediate object yields (nil, false).
func extractPath(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	current := any(payload)
	for i, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := obj[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		current = value
	}
	return nil, false
}

func normalizeScalar(field *models.Field, value any) (any, error) {
	if field.IsTime {
		return normalizeTime(value)
	}
	if field.IsJSON {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode json field: %w", err)
		}
		return string(raw), nil
	}
	return value, nil
}

// normalizeTime converts RFC 3339 timestamps to naive UTC. Stored
// values carry no zone so comparisons against column values stay exact.
func normalizeTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("time value is %T, not a string", value)
	}
}

func coerceItemList(value any) ([]map[string]any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("collection payload is %T, not a list", value)
	}
	items := make([]map[string]any, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("collection item %d is %T, not an object", i, entry)
		}
		items = append(items, obj)
	}
	return items, nil
}

func coerceInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("numeric value is %T", value)
	}
}
