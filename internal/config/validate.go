// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateGitHub(); err != nil {
		return err
	}

	if err := c.validateSync(); err != nil {
		return err
	}

	if err := c.validateJobs(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateWebhook(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateGitHub() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if err := validateHTTPURL(c.GitHub.BaseURL, "GITHUB_BASE_URL"); err != nil {
		return err
	}
	if err := validateHTTPURL(c.GitHub.GraphQLURL, "GITHUB_GRAPHQL_URL"); err != nil {
		return err
	}
	if c.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("GITHUB_REQUESTS_PER_SECOND must be positive, got %v", c.GitHub.RequestsPerSecond)
	}
	for _, repo := range c.GitHub.Repos {
		owner, name, found := strings.Cut(repo, "/")
		if !found || owner == "" || name == "" {
			return fmt.Errorf("GITHUB_REPOS entry %q is not in owner/name form", repo)
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.MaxPages < 0 {
		return fmt.Errorf("SYNC_MAX_PAGES must not be negative, got %d", c.Sync.MaxPages)
	}
	if c.Sync.RetryAttempts < 0 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must not be negative, got %d", c.Sync.RetryAttempts)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOBS_WORKERS must be at least 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("JOBS_MAX_ATTEMPTS must be at least 1, got %d", c.Jobs.MaxAttempts)
	}
	if c.Jobs.StorePath == "" {
		return fmt.Errorf("JOBS_STORE_PATH must not be empty")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative, got %d", c.Server.RateLimitReqs)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if c.Webhook.Enabled && c.Webhook.Secret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that the value parses as an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	if raw == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
