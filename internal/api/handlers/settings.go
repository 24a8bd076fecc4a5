// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// SettingsHandler handles the persisted service configuration.
type SettingsHandler struct {
	settings *models.SettingsStore
}

func NewSettingsHandler(settings *models.SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Routes registers settings routes on the given router
func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/download-path", h.SetDownloadPath)
	r.Put("/qbit", h.SetQbitConfig)
}

type settingsResponse struct {
	DownloadPath string             `json:"download_path"`
	QbitConfig   *models.QbitConfig `json:"qbit_config,omitempty"`
}

// Get returns the current settings; unset keys come back empty. The
// qbit password is not echoed.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	var resp settingsResponse

	path, err := h.settings.GetDownloadPath(r.Context())
	if err != nil && !errors.Is(err, models.ErrSettingNotFound) {
		log.Error().Err(err).Msg("get download path failed")
		RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	resp.DownloadPath = path

	cfg, err := h.settings.GetQbitConfig(r.Context())
	if err != nil && !errors.Is(err, models.ErrSettingNotFound) {
		log.Error().Err(err).Msg("get qbit config failed")
		RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	if cfg != nil {
		resp.QbitConfig = &models.QbitConfig{URL: cfg.URL, Username: cfg.Username}
	}

	RespondJSON(w, http.StatusOK, resp)
}

type downloadPathRequest struct {
	DownloadPath string `json:"download_path"`
}

func (h *SettingsHandler) SetDownloadPath(w http.ResponseWriter, r *http.Request) {
	var req downloadPathRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.DownloadPath == "" {
		RespondError(w, http.StatusBadRequest, "download_path is required")
		return
	}

	if err := h.settings.SetDownloadPath(r.Context(), req.DownloadPath); err != nil {
		log.Error().Err(err).Msg("set download path failed")
		RespondError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

func (h *SettingsHandler) SetQbitConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.QbitConfig
	if !DecodeJSON(w, r, &cfg) {
		return
	}
	if cfg.URL == "" || cfg.Username == "" || cfg.Password == "" {
		RespondError(w, http.StatusBadRequest, "url, username and password are required")
		return
	}

	if err := h.settings.SetQbitConfig(r.Context(), &cfg); err != nil {
		log.Error().Err(err).Msg("set qbit config failed")
		RespondError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"url": cfg.URL, "username": cfg.Username})
}
