// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package supervisor

import (
	"context"
	"errors"
	"time"
)

// Seeder enqueues the initial recurring sync jobs. Satisfied by the sync
// manager.
type Seeder interface {
	EnqueueInitialJobs(ctx context.Context) error
}

// SeedService seeds the job queue once at startup, then idles so the
// supervisor does not treat the one-shot as a crash loop. A restart after
// a failure retries the seeding; dedup makes repeats harmless.
type SeedService struct {
	seeder Seeder
}

// NewSeedService wraps a Seeder as a supervised service.
func NewSeedService(seeder Seeder) *SeedService {
	return &SeedService{seeder: seeder}
}

// Serve implements suture.Service.
func (s *SeedService) Serve(ctx context.Context) error {
	if err := s.seeder.EnqueueInitialJobs(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *SeedService) String() string { return "sync-seed" }

// BrokerRunner is the embedded NATS server lifecycle. Satisfied by
// events.EmbeddedServer.
type BrokerRunner interface {
	Running() bool
	Shutdown(ctx context.Context) error
}

// BrokerService supervises an already-started embedded broker: it idles
// while the broker runs and shuts it down when the tree stops.
type BrokerService struct {
	broker          BrokerRunner
	shutdownTimeout time.Duration
}

// NewBrokerService wraps an embedded broker as a supervised service.
func NewBrokerService(broker BrokerRunner) *BrokerService {
	return &BrokerService{broker: broker, shutdownTimeout: 10 * time.Second}
}

// Serve implements suture.Service.
func (s *BrokerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.broker.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.broker.Running() {
				return errBrokerStopped
			}
		}
	}
}

func (s *BrokerService) String() string { return "nats-broker" }

var errBrokerStopped = errors.New("embedded broker stopped unexpectedly")
