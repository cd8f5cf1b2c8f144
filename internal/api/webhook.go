// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/models"
)

// maxWebhookBody bounds webhook delivery payloads. GitHub caps
// deliveries at 25MB; anything larger is hostile.
const maxWebhookBody = 25 << 20

// Webhook ingests a GitHub webhook delivery. The signature is verified
// against the configured secret before anything is parsed; valid
// deliveries become low-latency refresh jobs for the named repository.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Webhook.Enabled {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "webhooks disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "read delivery body")
		return
	}

	if !verifySignature(h.cfg.Webhook.Secret, r.Header.Get("X-Hub-Signature-256"), body) {
		logging.Ctx(r.Context()).Warn().
			Str("delivery", r.Header.Get("X-GitHub-Delivery")).
			Msg("webhook signature rejected")
		respondError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid signature")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if event == "ping" {
		respondData(w, r, http.StatusOK, map[string]string{"status": "pong"})
		return
	}

	var delivery map[string]any
	if err := json.Unmarshal(body, &delivery); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "malformed delivery payload")
		return
	}

	deliveryID := r.Header.Get("X-GitHub-Delivery")
	job := &models.Job{
		Identifier:  models.JobIdentifier(models.KindRepository, "webhook/"+deliveryID, ""),
		Kind:        models.KindRepository,
		Subject:     deliveryID,
		Operation:   "webhook",
		Priority:    1,
		MaxAttempts: h.cfg.Jobs.MaxAttempts,
		Payload: map[string]any{
			"event":    event,
			"delivery": delivery,
		},
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "enqueue webhook job")
		return
	}

	respondData(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// verifySignature checks GitHub's HMAC-SHA256 delivery signature in
// constant time.
func verifySignature(secret, header string, body []byte) bool {
	if secret == "" || header == "" {
		return false
	}
	signature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
