// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

/*
Package config provides layered configuration management.

Configuration is loaded with Koanf v2 from three sources, later sources
overriding earlier ones:

 1. Built-in defaults
 2. An optional YAML config file (config.yaml, or CONFIG_PATH)
 3. Environment variables

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.New(cfg.Database)
	client := sync.NewGitHubClient(cfg.GitHub)

# Environment Variables

Every setting has an environment variable; the mapping lives in
envTransformFunc. The required variables are GITHUB_TOKEN and, when
webhook ingestion is enabled, WEBHOOK_SECRET. List-valued variables
(GITHUB_REPOS, CORS_ORIGINS) accept comma-separated values.

# Credential Encryption

CredentialEncryptor encrypts the upstream token and webhook secret for
at-rest storage with AES-256-GCM, deriving the key from a master secret
via HKDF-SHA256.
*/
package config
