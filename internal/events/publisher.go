// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/metrics"
	"github.com/octomirror/octomirror/internal/models"
)

// Publisher serializes entity change events onto Watermill topics. It
// implements sync.Publisher.
type Publisher struct {
	publisher message.Publisher
	prefix    string
	breaker   *gobreaker.CircuitBreaker[any]

	mu     sync.Mutex
	closed bool
}

// New builds the publisher the configuration asks for: a NATS JetStream
// publisher when NATS is enabled, an in-process channel Pub/Sub otherwise.
func New(cfg config.NATSConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return NewInProcess(cfg.SubjectPrefix), nil
	}
	return NewNATS(cfg)
}

// NewInProcess returns a publisher over an in-process Go channel Pub/Sub.
// Events are observable by same-process subscribers only.
func NewInProcess(prefix string) *Publisher {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, NewWatermillLogger())
	return newPublisher(pubsub, prefix)
}

// NewNATS returns a publisher over NATS JetStream.
func NewNATS(cfg config.NATSConfig) (*Publisher, error) {
	logger := NewWatermillLogger()
	natsOpts := []natsgo.Option{
		natsgo.Name("octomirror-publisher"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return newPublisher(pub, cfg.SubjectPrefix), nil
}

func newPublisher(pub message.Publisher, prefix string) *Publisher {
	if prefix == "" {
		prefix = "octomirror"
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "event-publisher",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.WithLabelValues(name).Inc()
			}
		},
	})
	return &Publisher{publisher: pub, prefix: prefix, breaker: breaker}
}

// TopicFor renders the topic an entity kind's events are published on.
func (p *Publisher) TopicFor(kind models.Kind) string {
	return fmt.Sprintf("%s.entity.%s", p.prefix, kind)
}

// PublishEntityChanged serializes one change event and publishes it on the
// kind's topic. Publish failures are counted and logged but never fail the
// reconciliation that produced the event.
func (p *Publisher) PublishEntityChanged(ctx context.Context, event *models.EntityChanged) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("event publisher closed")
	}
	p.mu.Unlock()

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal entity change: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("change", string(event.Change))
	msg.Metadata.Set("kind", string(event.Kind))

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(p.TopicFor(event.Kind), msg)
	})
	if err != nil {
		metrics.EventPublishErrors.Inc()
		logging.Ctx(ctx).Err(err).
			Str("change", string(event.Change)).
			Str("kind", string(event.Kind)).
			Int64("local_id", event.LocalID).
			Msg("publish entity change")
		return err
	}

	metrics.EventsPublished.WithLabelValues(string(event.Change), string(event.Kind)).Inc()
	return nil
}

// Close shuts the underlying publisher down. Further publishes fail fast.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.publisher.Close()
}
