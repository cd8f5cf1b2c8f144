// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Package events publishes entity change notifications.
//
// The reconciler emits one EntityChanged per materially changed row;
// this package serializes those onto Watermill topics, either a NATS
// JetStream publisher for multi-process deployments or an in-process
// Go channel Pub/Sub when NATS is disabled. Topic names follow
// "{prefix}.entity.{kind}" so downstream consumers can subscribe per
// entity kind.
package events
