// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/octomirror/config.yaml",
	"/etc/octomirror/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			Token:             "",
			BaseURL:           "https://api.github.com",
			GraphQLURL:        "https://api.github.com/graphql",
			APIVersion:        "2022-11-28",
			UserAgent:         "octomirror",
			Timeout:           30 * time.Second,
			Repos:             []string{},
			RequestsPerSecond: 2.0,
			Burst:             5,
		},
		Database: DatabaseConfig{
			Path:      "/data/octomirror.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Sync: SyncConfig{
			Interval:       30 * time.Minute,
			PageSize:       100,
			MaxPages:       0,
			CommitLookback: 0,
			RetryAttempts:  5,
			RetryDelay:     2 * time.Second,
		},
		Jobs: JobsConfig{
			Workers:       4,
			MaxAttempts:   5,
			RetryDelay:    5 * time.Second,
			MaxBackoff:    10 * time.Minute,
			StorePath:     "/data/jobs",
			Retention:     7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,
			MaxStore:       10 << 30,
			SubjectPrefix:  "octomirror",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8993,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			Environment:     "development",
		},
		Webhook: WebhookConfig{
			Enabled: false,
			Secret:  "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file (if it exists)
//  3. Environment Variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// GITHUB_REPOS -> github.repos, HTTP_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.decryptCredentials(); err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// encryptedPrefix marks a credential value stored encrypted at rest.
const encryptedPrefix = "enc:"

// MasterSecretEnvVar supplies the key material for encrypted credentials.
const MasterSecretEnvVar = "OCTOMIRROR_MASTER_SECRET"

// decryptCredentials replaces "enc:"-prefixed credential values with
// their plaintext, using the master secret from the environment.
func (c *Config) decryptCredentials() error {
	tokenEnc := strings.HasPrefix(c.GitHub.Token, encryptedPrefix)
	secretEnc := strings.HasPrefix(c.Webhook.Secret, encryptedPrefix)
	if !tokenEnc && !secretEnc {
		return nil
	}

	encryptor, err := NewCredentialEncryptor(os.Getenv(MasterSecretEnvVar))
	if err != nil {
		return fmt.Errorf("%s: %w", MasterSecretEnvVar, err)
	}
	if tokenEnc {
		plain, err := encryptor.Decrypt(strings.TrimPrefix(c.GitHub.Token, encryptedPrefix))
		if err != nil {
			return fmt.Errorf("github token: %w", err)
		}
		c.GitHub.Token = plain
	}
	if secretEnc {
		plain, err := encryptor.Decrypt(strings.TrimPrefix(c.Webhook.Secret, encryptedPrefix))
		if err != nil {
			return fmt.Errorf("webhook secret: %w", err)
		}
		c.Webhook.Secret = plain
	}
	return nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"github.repos",
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, YAML already yields
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config
// paths.
//
// Examples:
//   - GITHUB_TOKEN -> github.token
//   - SYNC_INTERVAL -> sync.interval
//   - HTTP_PORT -> server.port
//   - NATS_EMBEDDED -> nats.embedded_server
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// GitHub mappings
		"github_token":               "github.token",
		"github_base_url":            "github.base_url",
		"github_graphql_url":         "github.graphql_url",
		"github_api_version":         "github.api_version",
		"github_user_agent":          "github.user_agent",
		"github_timeout":             "github.timeout",
		"github_repos":               "github.repos",
		"github_requests_per_second": "github.requests_per_second",
		"github_burst":               "github.burst",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Sync mappings
		"sync_interval":        "sync.interval",
		"sync_page_size":       "sync.page_size",
		"sync_max_pages":       "sync.max_pages",
		"sync_commit_lookback": "sync.commit_lookback",
		"sync_retry_attempts":  "sync.retry_attempts",
		"sync_retry_delay":     "sync.retry_delay",

		// Job mappings
		"jobs_workers":        "jobs.workers",
		"jobs_max_attempts":   "jobs.max_attempts",
		"jobs_retry_delay":    "jobs.retry_delay",
		"jobs_max_backoff":    "jobs.max_backoff",
		"jobs_store_path":     "jobs.store_path",
		"jobs_retention":      "jobs.retention",
		"jobs_sweep_interval": "jobs.sweep_interval",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_max_memory":     "nats.max_memory",
		"nats_max_store":      "nats.max_store",
		"nats_subject_prefix": "nats.subject_prefix",

		// Server mappings
		"http_port":           "server.port",
		"http_host":           "server.host",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"environment":         "server.environment",

		// Webhook mappings
		"webhook_enabled": "webhook.enabled",
		"webhook_secret":  "webhook.secret",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if path, ok := envMappings[key]; ok {
		return path
	}

	// Unknown variables are dropped.
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
