// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

// Command server runs the mirror: it opens the local store, connects the
// upstream clients, starts the job queue and serves the control API, all
// under one supervision tree.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/octomirror/octomirror/internal/api"
	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/events"
	"github.com/octomirror/octomirror/internal/jobs"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/supervisor"
	"github.com/octomirror/octomirror/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("repos", len(cfg.GitHub.Repos)).
		Str("db_path", cfg.Database.Path).
		Bool("nats", cfg.NATS.Enabled).
		Bool("webhooks", cfg.Webhook.Enabled).
		Msg("Starting Octomirror")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Embedded broker starts before the publisher so the publisher can
	// connect to its client URL.
	var broker *events.EmbeddedServer
	if cfg.NATS.Enabled && cfg.NATS.EmbeddedServer {
		broker, err = events.NewEmbeddedServer(cfg.NATS)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		cfg.NATS.URL = broker.ClientURL()
		tree.AddSyncService(supervisor.NewBrokerService(broker))
		logging.Info().Str("url", cfg.NATS.URL).Msg("Embedded NATS server started")
	}

	publisher, err := events.New(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	jobStore, err := jobs.OpenStore(cfg.Jobs.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing job store")
		}
	}()

	queue := jobs.NewQueue(cfg.Jobs, jobStore)

	client := sync.NewCircuitBreakerClient(sync.NewGitHubClient(&cfg.GitHub))
	graphql := sync.NewGraphQLClient(&cfg.GitHub)
	manager := sync.NewManager(cfg, db, client, graphql, publisher, queue)
	queue.SetExecutor(manager)

	tree.AddSyncService(queue)
	tree.AddSyncService(supervisor.NewSeedService(manager))

	server := api.NewServer(cfg.Server, api.NewHandler(cfg, db, queue))
	tree.AddAPIService(server)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service missed shutdown timeout")
		}
	}
	logging.Info().Msg("Octomirror stopped")
}
