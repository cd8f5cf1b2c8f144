// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/models"
)

func TestTopicFor(t *testing.T) {
	p := newPublisher(gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger()), "mirror")
	t.Cleanup(func() { p.Close() })

	if got := p.TopicFor(models.KindRepository); got != "mirror.entity.repository" {
		t.Errorf("TopicFor(repository) = %q, want %q", got, "mirror.entity.repository")
	}

	defaulted := newPublisher(gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger()), "")
	t.Cleanup(func() { defaulted.Close() })
	if got := defaulted.TopicFor(models.KindIssue); got != "octomirror.entity.issue" {
		t.Errorf("TopicFor with default prefix = %q, want %q", got, "octomirror.entity.issue")
	}
}

func TestPublishEntityChangedRoundTrip(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, NewWatermillLogger())
	p := newPublisher(pubsub, "mirror")
	t.Cleanup(func() { p.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, "mirror.entity.issue")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := &models.EntityChanged{
		Change:     models.ChangeUpdated,
		Kind:       models.KindIssue,
		LocalID:    42,
		RemoteID:   9001,
		NaturalKey: map[string]any{"repo_id": int64(1), "number": int64(7)},
		Changed:    []string{"title", "updated_at"},
	}
	if err := p.PublishEntityChanged(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if event.At.IsZero() {
		t.Errorf("publish did not stamp the event time")
	}

	select {
	case msg := <-messages:
		msg.Ack()
		if got := msg.Metadata.Get("change"); got != "updated" {
			t.Errorf("change metadata = %q, want updated", got)
		}
		if got := msg.Metadata.Get("kind"); got != "issue" {
			t.Errorf("kind metadata = %q, want issue", got)
		}
		var decoded models.EntityChanged
		if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if decoded.LocalID != 42 || decoded.RemoteID != 9001 {
			t.Errorf("decoded ids = %d/%d, want 42/9001", decoded.LocalID, decoded.RemoteID)
		}
		if len(decoded.Changed) != 2 || decoded.Changed[0] != "title" {
			t.Errorf("decoded changed fields = %v", decoded.Changed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	p := NewInProcess("mirror")
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := p.PublishEntityChanged(context.Background(), &models.EntityChanged{
		Change: models.ChangeCreated,
		Kind:   models.KindAccount,
	})
	if err == nil {
		t.Fatal("publish after close succeeded")
	}
}
