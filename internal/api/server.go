// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api wires the REST surface over the stores and the engine.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/api/handlers"
	"github.com/autobrr/yanami/internal/api/middleware"
	"github.com/autobrr/yanami/internal/auth"
	"github.com/autobrr/yanami/internal/domain"
	"github.com/autobrr/yanami/internal/models"
)

// Dependencies bundles everything the router needs.
type Dependencies struct {
	Config   *domain.Config
	Tokens   *auth.TokenService
	Statuses *models.AnimeStatusStore
	Records  *models.AnimeRecordStore
	Rules    *models.RuleStore
	Feeds    *models.FeedStore
	Settings *models.SettingsStore
	Users    *models.UserStore
	Engine   handlers.Engine
}

// Server is the HTTP front of the service.
type Server struct {
	deps *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	authHandler := handlers.NewAuthHandler(s.deps.Users, s.deps.Tokens)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{
				"status":  "ok",
				"version": s.deps.Config.Version,
			})
		})

		r.Route("/auth", func(r chi.Router) {
			authHandler.Routes(r)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireToken(s.deps.Tokens))
				authHandler.ProtectedRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.deps.Tokens))

			r.Route("/anime", handlers.NewAnimeHandler(s.deps.Statuses, s.deps.Records, s.deps.Engine).Routes)
			r.Route("/rules", handlers.NewRulesHandler(s.deps.Rules).Routes)
			r.Route("/rss", handlers.NewFeedsHandler(s.deps.Feeds).Routes)
			r.Route("/settings", handlers.NewSettingsHandler(s.deps.Settings).Routes)
			r.Route("/sync", handlers.NewEngineHandler(s.deps.Engine).Routes)
		})
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown http server")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	}
}
