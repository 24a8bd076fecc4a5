// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// EngineHandler exposes manual triggers for the engine's periodic work.
type EngineHandler struct {
	engine Engine
}

func NewEngineHandler(engine Engine) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// Routes registers engine routes on the given router
func (h *EngineHandler) Routes(r chi.Router) {
	r.Post("/calendar", h.SyncCalendar)
	r.Post("/feeds", h.PollFeeds)
}

// SyncCalendar kicks off one calendar-sync cycle in the background.
func (h *EngineHandler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	go h.engine.SyncCalendar(context.WithoutCancel(r.Context()))
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "calendar sync started"})
}

// PollFeeds kicks off one feed-poll cycle in the background.
func (h *EngineHandler) PollFeeds(w http.ResponseWriter, r *http.Request) {
	go h.engine.PollFeeds(context.WithoutCancel(r.Context()))
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "feed poll started"})
}
