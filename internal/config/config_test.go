// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.GitHub.Token = "ghp_testtoken"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config with token",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.GitHub.Token = "" },
			wantErr: "GITHUB_TOKEN",
		},
		{
			name:    "bad base url scheme",
			mutate:  func(c *Config) { c.GitHub.BaseURL = "ftp://api.github.com" },
			wantErr: "GITHUB_BASE_URL",
		},
		{
			name:    "malformed repo entry",
			mutate:  func(c *Config) { c.GitHub.Repos = []string{"alice/foo", "nodash"} },
			wantErr: "owner/name",
		},
		{
			name:    "page size above upstream cap",
			mutate:  func(c *Config) { c.Sync.PageSize = 250 },
			wantErr: "SYNC_PAGE_SIZE",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Jobs.Workers = 0 },
			wantErr: "JOBS_WORKERS",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.Server.Environment = "qa" },
			wantErr: "ENVIRONMENT",
		},
		{
			name:    "webhook enabled without secret",
			mutate:  func(c *Config) { c.Webhook.Enabled = true },
			wantErr: "WEBHOOK_SECRET",
		},
		{
			name: "webhook enabled with secret",
			mutate: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Secret = "hunter2"
			},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{env: "GITHUB_TOKEN", want: "github.token"},
		{env: "GITHUB_REPOS", want: "github.repos"},
		{env: "DUCKDB_PATH", want: "database.path"},
		{env: "SYNC_INTERVAL", want: "sync.interval"},
		{env: "JOBS_WORKERS", want: "jobs.workers"},
		{env: "NATS_EMBEDDED", want: "nats.embedded_server"},
		{env: "HTTP_PORT", want: "server.port"},
		{env: "WEBHOOK_SECRET", want: "webhook.secret"},
		{env: "LOG_LEVEL", want: "logging.level"},
		{env: "PATH", want: ""},
		{env: "HOME", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.GitHub.BaseURL != "https://api.github.com" {
		t.Errorf("default base URL = %q", cfg.GitHub.BaseURL)
	}
	if cfg.Sync.PageSize != 100 {
		t.Errorf("default page size = %d, want 100", cfg.Sync.PageSize)
	}
	if cfg.Jobs.Workers < 1 {
		t.Errorf("default workers = %d, want >= 1", cfg.Jobs.Workers)
	}
	if cfg.Server.Addr() != "0.0.0.0:8993" {
		t.Errorf("default addr = %q, want 0.0.0.0:8993", cfg.Server.Addr())
	}
}
