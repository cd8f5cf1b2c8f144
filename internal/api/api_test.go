// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/database"
	"github.com/octomirror/octomirror/internal/jobs"
	"github.com/octomirror/octomirror/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		GitHub: config.GitHubConfig{
			Repos: []string{"alice/widgets", "alice/gadgets"},
		},
		Jobs: config.JobsConfig{MaxAttempts: 5},
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    0,
			Timeout: 30 * time.Second,
		},
		Webhook: config.WebhookConfig{Enabled: true, Secret: "hook-secret"},
	}
}

func testServer(t *testing.T, cfg *config.Config) (http.Handler, *jobs.Queue, *database.DB) {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := jobs.OpenStore("")
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	queue := jobs.NewQueue(cfg.Jobs, store)

	srv := NewServer(cfg.Server, NewHandler(cfg, db, queue))
	return srv.routes(), queue, db
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &resp
}

func TestHealthEndpoints(t *testing.T) {
	router, _, _ := testServer(t, testConfig())

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if resp := decodeResponse(t, rec); !resp.Success {
			t.Errorf("GET %s reported failure", path)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _, _ := testServer(t, testConfig())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeResponse(t, rec)
		data, _ := resp.Data.(map[string]any)
		entities, _ := data["entities"].(map[string]any)
		if _, ok := entities["repository"]; !ok {
			t.Errorf("stats missing repository count: %v", entities)
		}
	}
}

func TestTriggerSyncSingleRepo(t *testing.T) {
	router, queue, _ := testServer(t, testConfig())

	body := bytes.NewBufferString(`{"repo":"alice/widgets","force":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	list, err := queue.List()
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(list))
	}
	job := list[0]
	if job.Operation != "resync" || job.Subject != "alice/widgets" {
		t.Errorf("job = %s %s, want resync alice/widgets", job.Operation, job.Subject)
	}
	if force, _ := job.Payload["force"].(bool); !force {
		t.Errorf("force flag not carried into job payload")
	}
}

func TestTriggerSyncAllConfiguredRepos(t *testing.T) {
	router, queue, _ := testServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	list, err := queue.List()
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("enqueued %d jobs, want one per configured repo", len(list))
	}
}

func TestTriggerSyncWithoutRepos(t *testing.T) {
	cfg := testConfig()
	cfg.GitHub.Repos = nil
	router, _, _ := testServer(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestJobLookup(t *testing.T) {
	router, queue, _ := testServer(t, testConfig())

	job := &models.Job{
		Identifier: models.JobIdentifier(models.KindRepository, "alice/widgets", ""),
		Kind:       models.KindRepository,
		Subject:    "alice/widgets",
		Operation:  "resync",
	}
	if err := queue.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/no-such-job", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestConflictsEndpoint(t *testing.T) {
	router, _, db := testServer(t, testConfig())

	err := db.RecordConflict(context.Background(), &models.IdentityConflict{
		Kind:           models.KindAccount,
		NaturalKey:     map[string]any{"login": "alice"},
		LocalRemoteID:  1,
		IncomingRemote: 2,
	})
	if err != nil {
		t.Fatalf("record conflict: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conflicts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, _ := resp.Data.(map[string]any)
	if count, _ := data["count"].(float64); count != 1 {
		t.Errorf("count = %v, want 1", data["count"])
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conflicts?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureVerification(t *testing.T) {
	router, queue, _ := testServer(t, testConfig())
	body := []byte(`{"repository":{"full_name":"alice/widgets"},"action":"opened"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", signBody("hook-secret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	list, err := queue.List()
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(list))
	}
	job := list[0]
	if job.Operation != "webhook" {
		t.Errorf("operation = %s, want webhook", job.Operation)
	}
	if event, _ := job.Payload["event"].(string); event != "issues" {
		t.Errorf("payload event = %q, want issues", event)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router, queue, _ := testServer(t, testConfig())
	body := []byte(`{"repository":{"full_name":"alice/widgets"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", signBody("wrong-secret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	list, err := queue.List()
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("unsigned delivery enqueued %d jobs", len(list))
	}
}

func TestWebhookPing(t *testing.T) {
	router, _, _ := testServer(t, testConfig())
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-Hub-Signature-256", signBody("hook-secret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ping status = %d, want 200", rec.Code)
	}
}

func TestWebhookDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Enabled = false
	router, _, _ := testServer(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/github", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte("payload")
	tests := []struct {
		name   string
		secret string
		header string
		want   bool
	}{
		{"valid", "s3cret", signBody("s3cret", body), true},
		{"wrong secret", "s3cret", signBody("other", body), false},
		{"missing prefix", "s3cret", "deadbeef", false},
		{"not hex", "s3cret", "sha256=zzzz", false},
		{"empty header", "s3cret", "", false},
		{"no secret configured", "", signBody("", body), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifySignature(tt.secret, tt.header, body); got != tt.want {
				t.Errorf("verifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}
