// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// RulesHandler handles the tagging-rule endpoints.
type RulesHandler struct {
	rules *models.RuleStore
}

func NewRulesHandler(rules *models.RuleStore) *RulesHandler {
	return &RulesHandler{rules: rules}
}

// Routes registers rule routes on the given router
func (h *RulesHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Set)
	r.Delete("/{name}", h.Delete)
}

func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list rules failed")
		RespondError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	RespondJSON(w, http.StatusOK, rules)
}

// Set upserts a rule by name. The regex is validated here so a broken
// rule never reaches the cache.
func (h *RulesHandler) Set(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if !DecodeJSON(w, r, &rule) {
		return
	}
	if rule.Name == "" {
		RespondError(w, http.StatusBadRequest, "Rule name is required")
		return
	}
	if _, err := regexp.Compile(rule.Re); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid regex: "+err.Error())
		return
	}

	if err := h.rules.Set(r.Context(), &rule); err != nil {
		log.Error().Err(err).Str("rule", rule.Name).Msg("set rule failed")
		RespondError(w, http.StatusInternalServerError, "Failed to save rule")
		return
	}
	RespondJSON(w, http.StatusOK, &rule)
}

func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.rules.Delete(r.Context(), name); err != nil {
		if errors.Is(err, models.ErrRuleNotFound) {
			RespondError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Error().Err(err).Str("rule", name).Msg("delete rule failed")
		RespondError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
