// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package config

import (
	"time"
)

// Config holds all application configuration loaded from environment
// variables and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent read access
// from multiple goroutines.
type Config struct {
	GitHub   GitHubConfig   `koanf:"github"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Jobs     JobsConfig     `koanf:"jobs"`
	NATS     NATSConfig     `koanf:"nats"`
	Server   ServerConfig   `koanf:"server"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// GitHubConfig holds the upstream API connection settings.
//
// Environment Variables:
//   - GITHUB_TOKEN: Personal access token or installation token
//   - GITHUB_BASE_URL: REST API base (default: https://api.github.com)
//   - GITHUB_GRAPHQL_URL: GraphQL endpoint (default: https://api.github.com/graphql)
//   - GITHUB_REPOS: Comma-separated "owner/name" list to mirror
type GitHubConfig struct {
	Token      string        `koanf:"token"`
	BaseURL    string        `koanf:"base_url"`
	GraphQLURL string        `koanf:"graphql_url"`
	APIVersion string        `koanf:"api_version"`
	UserAgent  string        `koanf:"user_agent"`
	Timeout    time.Duration `koanf:"timeout"`

	// Repos lists the repositories to mirror, as "owner/name".
	Repos []string `koanf:"repos"`

	// RequestsPerSecond bounds the steady-state REST request rate.
	// Secondary rate limit responses still force additional waits.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// SyncConfig holds the periodic synchronization settings.
type SyncConfig struct {
	// Interval is the delay between self-cloning full resync jobs.
	Interval time.Duration `koanf:"interval"`

	// PageSize is the per_page parameter for list fetches, capped at 100
	// by the upstream API.
	PageSize int `koanf:"page_size"`

	// MaxPages bounds a single collection pass. 0 means unbounded.
	MaxPages int `koanf:"max_pages"`

	// CommitLookback stops commit listing at pages entirely older than
	// now minus this duration. 0 disables the cutoff.
	CommitLookback time.Duration `koanf:"commit_lookback"`

	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// JobsConfig holds job queue and scheduler settings.
type JobsConfig struct {
	Workers     int           `koanf:"workers"`
	MaxAttempts int           `koanf:"max_attempts"`
	RetryDelay  time.Duration `koanf:"retry_delay"`

	// MaxBackoff caps exponential retry delays.
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// StorePath is the Badger directory persisting job history.
	StorePath string `koanf:"store_path"`

	// Retention bounds how long finished jobs are kept before the sweep
	// removes them.
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// NATSConfig holds the event publishing settings. When Enabled is false
// entity change events are delivered over an in-process channel only.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	// SubjectPrefix prefixes all published topics, e.g. "octomirror".
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	Environment     string        `koanf:"environment"`
}

// WebhookConfig holds upstream webhook ingestion settings. The secret is
// the HMAC key GitHub signs deliveries with.
type WebhookConfig struct {
	Enabled bool   `koanf:"enabled"`
	Secret  string `koanf:"secret"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
