// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// Engine is the running tasker, as seen by the API.
type Engine interface {
	SyncCalendar(ctx context.Context)
	PollFeeds(ctx context.Context)
	StartListener(ctx context.Context, status models.AnimeStatus)
}

// AnimeHandler handles the tracked-series endpoints.
type AnimeHandler struct {
	statuses *models.AnimeStatusStore
	records  *models.AnimeRecordStore
	engine   Engine
}

func NewAnimeHandler(statuses *models.AnimeStatusStore, records *models.AnimeRecordStore, engine Engine) *AnimeHandler {
	return &AnimeHandler{statuses: statuses, records: records, engine: engine}
}

// Routes registers anime routes on the given router
func (h *AnimeHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Get("/{id}/records", h.ListRecords)
}

func (h *AnimeHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.statuses.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list anime failed")
		RespondError(w, http.StatusInternalServerError, "Failed to list anime")
		return
	}
	RespondJSON(w, http.StatusOK, statuses)
}

func (h *AnimeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}

	status, err := h.statuses.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAnimeNotFound) {
			RespondError(w, http.StatusNotFound, "Anime not found")
			return
		}
		log.Error().Err(err).Int64("anime", id).Msg("get anime failed")
		RespondError(w, http.StatusInternalServerError, "Failed to get anime")
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

// Update replaces the tracking state of one series. Operator edits are
// the only way a retired series comes back; in that case the listener
// is restarted immediately.
func (h *AnimeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}

	existing, err := h.statuses.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAnimeNotFound) {
			RespondError(w, http.StatusNotFound, "Anime not found")
			return
		}
		log.Error().Err(err).Int64("anime", id).Msg("get anime failed")
		RespondError(w, http.StatusInternalServerError, "Failed to update anime")
		return
	}

	var status models.AnimeStatus
	if !DecodeJSON(w, r, &status) {
		return
	}
	status.AnimeInfo.ID = id

	switch status.Status {
	case models.WatchStatusWatching, models.WatchStatusRetired:
	default:
		RespondError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	if err := h.statuses.Save(r.Context(), &status); err != nil {
		log.Error().Err(err).Int64("anime", id).Msg("save anime failed")
		RespondError(w, http.StatusInternalServerError, "Failed to update anime")
		return
	}

	if existing.Status == models.WatchStatusRetired && status.Status == models.WatchStatusWatching {
		h.engine.StartListener(r.Context(), status)
	}

	RespondJSON(w, http.StatusOK, &status)
}

func (h *AnimeHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}

	records, err := h.records.ListByAnime(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("anime", id).Msg("list records failed")
		RespondError(w, http.StatusInternalServerError, "Failed to list records")
		return
	}
	RespondJSON(w, http.StatusOK, records)
}
