// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/api/ctxkeys"
	"github.com/autobrr/yanami/internal/auth"
	"github.com/autobrr/yanami/internal/models"
)

// AuthHandler handles login and first-run registration.
type AuthHandler struct {
	users  *models.UserStore
	tokens *auth.TokenService
}

func NewAuthHandler(users *models.UserStore, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// Routes registers the public auth routes.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Get("/check", h.Check)
}

// ProtectedRoutes registers the routes behind the token middleware.
func (h *AuthHandler) ProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Login exchanges credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			RespondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Error().Err(err).Msg("user lookup failed")
		RespondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	valid, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !valid {
		RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		log.Error().Err(err).Msg("token issue failed")
		RespondError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	RespondJSON(w, http.StatusOK, tokenResponse{Token: token, Username: user.Username})
}

// Register creates the first operator account. Once any user exists the
// endpoint is closed.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	count, err := h.users.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("user count failed")
		RespondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	if count > 0 {
		RespondError(w, http.StatusForbidden, "Setup already complete")
		return
	}

	var req credentialsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		RespondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("password hash failed")
		RespondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	user, err := h.users.Create(r.Context(), req.Username, hash, "admin")
	if err != nil {
		if errors.Is(err, models.ErrUserAlreadyExists) {
			RespondError(w, http.StatusConflict, "Username already taken")
			return
		}
		log.Error().Err(err).Msg("user create failed")
		RespondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		log.Error().Err(err).Msg("token issue failed")
		RespondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	RespondJSON(w, http.StatusCreated, tokenResponse{Token: token, Username: user.Username})
}

// Check reports whether first-run registration is still open.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	count, err := h.users.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("user count failed")
		RespondError(w, http.StatusInternalServerError, "Check failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"setup_complete": count > 0})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(ctxkeys.Username).(string)
	RespondJSON(w, http.StatusOK, map[string]string{"username": username})
}
