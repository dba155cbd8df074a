// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"

	"github.com/trailhead/trailhead/internal/trails"
)

type trailsHandler struct {
	trails *trails.Service
	logger *slog.Logger
}

func (h *trailsHandler) list(w http.ResponseWriter, r *http.Request) {
	var q trails.ListQuery
	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, r, "limit must be an integer")
			return
		}
		q.Limit = limit
	}
	if raw := query.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, r, "skip must be an integer")
			return
		}
		q.Skip = skip
	}
	q.Search = query.Get("search")

	page, err := h.trails.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, page)
}

func (h *trailsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid trail id")
		return
	}

	trail, err := h.trails.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, trail)
}

func (h *trailsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req trails.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	trail, err := h.trails.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, trail)
}

func (h *trailsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid trail id")
		return
	}

	var req trails.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	trail, err := h.trails.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, trail)
}

func (h *trailsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid trail id")
		return
	}

	if err := h.trails.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
