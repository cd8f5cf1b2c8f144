// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/octomirror/octomirror/internal/config"
	"github.com/octomirror/octomirror/internal/logging"
	"github.com/octomirror/octomirror/internal/middleware"
)

// Server runs the HTTP API.
type Server struct {
	cfg     config.ServerConfig
	handler *Handler
	httpSrv *http.Server
}

// NewServer wires the router and the underlying http.Server.
func NewServer(cfg config.ServerConfig, handler *Handler) *Server {
	s := &Server{cfg: cfg, handler: handler}
	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Timeout,
		WriteTimeout:      cfg.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Prometheus)
		r.Use(httprate.Limit(
			s.rateLimitReqs(),
			s.rateLimitWindow(),
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
		))

		r.Get("/health", s.handler.Health)
		r.Get("/health/live", s.handler.HealthLive)
		r.Get("/health/ready", s.handler.HealthReady)
		r.Get("/stats", s.handler.Stats)
		r.Post("/sync", s.handler.TriggerSync)
		r.Get("/jobs", s.handler.Jobs)
		r.Get("/jobs/{id}", s.handler.Job)
		r.Get("/conflicts", s.handler.Conflicts)
	})

	// Webhooks authenticate by signature and must not be rate limited
	// with regular clients.
	r.Post("/webhooks/github", s.handler.Webhook)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	return r
}

func (s *Server) rateLimitReqs() int {
	if s.cfg.RateLimitReqs > 0 {
		return s.cfg.RateLimitReqs
	}
	return 300
}

func (s *Server) rateLimitWindow() time.Duration {
	if s.cfg.RateLimitWindow > 0 {
		return s.cfg.RateLimitWindow
	}
	return time.Minute
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully. It satisfies suture's service contract.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}
