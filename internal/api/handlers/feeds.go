// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// FeedsHandler handles the RSS source endpoints.
type FeedsHandler struct {
	feeds *models.FeedStore
}

func NewFeedsHandler(feeds *models.FeedStore) *FeedsHandler {
	return &FeedsHandler{feeds: feeds}
}

// Routes registers feed routes on the given router
func (h *FeedsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func validateFeed(feed *models.Feed) string {
	if feed.Title == "" {
		return "Feed title is required"
	}
	if feed.URL == "" && feed.SearchURL == "" {
		return "Feed needs a url or a search_url"
	}
	if feed.SearchURL != "" && !strings.Contains(feed.SearchURL, "{}") {
		return "search_url needs a {} placeholder"
	}
	return ""
}

func (h *FeedsHandler) List(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list feeds failed")
		RespondError(w, http.StatusInternalServerError, "Failed to list feeds")
		return
	}
	RespondJSON(w, http.StatusOK, feeds)
}

func (h *FeedsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var feed models.Feed
	if !DecodeJSON(w, r, &feed) {
		return
	}
	if msg := validateFeed(&feed); msg != "" {
		RespondError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.feeds.Create(r.Context(), &feed)
	if err != nil {
		log.Error().Err(err).Msg("create feed failed")
		RespondError(w, http.StatusInternalServerError, "Failed to create feed")
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func (h *FeedsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}

	var feed models.Feed
	if !DecodeJSON(w, r, &feed) {
		return
	}
	if msg := validateFeed(&feed); msg != "" {
		RespondError(w, http.StatusBadRequest, msg)
		return
	}
	feed.ID = id

	if err := h.feeds.Update(r.Context(), &feed); err != nil {
		if errors.Is(err, models.ErrFeedNotFound) {
			RespondError(w, http.StatusNotFound, "Feed not found")
			return
		}
		log.Error().Err(err).Int64("feed", id).Msg("update feed failed")
		RespondError(w, http.StatusInternalServerError, "Failed to update feed")
		return
	}
	RespondJSON(w, http.StatusOK, &feed)
}

func (h *FeedsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r)
	if !ok {
		return
	}

	if err := h.feeds.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrFeedNotFound) {
			RespondError(w, http.StatusNotFound, "Feed not found")
			return
		}
		log.Error().Err(err).Int64("feed", id).Msg("delete feed failed")
		RespondError(w, http.StatusInternalServerError, "Failed to delete feed")
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
