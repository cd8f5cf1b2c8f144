// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"context"

	"github.com/octomirror/octomirror/internal/models"
)

// Publisher receives entity change notifications as the engine writes.
type Publisher interface {
	PublishEntityChanged(ctx context.Context, event *models.EntityChanged) error
}

// NopPublisher drops every event. Used when eventing is disabled and
// throughout tests.
type NopPublisher struct{}

func (NopPublisher) PublishEntityChanged(context.Context, *models.EntityChanged) error {
	return nil
}
