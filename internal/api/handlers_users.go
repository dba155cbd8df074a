// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"

	"github.com/trailhead/trailhead/internal/access"
	"github.com/trailhead/trailhead/internal/users"
)

type usersHandler struct {
	users  *users.Service
	logger *slog.Logger
}

type registerAdminRequest struct {
	users.Registration
	AdminCode string `json:"adminCode"`
}

func (h *usersHandler) registerAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	profile, err := h.users.RegisterAdmin(r.Context(), req.Registration, req.AdminCode)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, profile)
}

func (h *usersHandler) registerMobile(w http.ResponseWriter, r *http.Request) {
	var req users.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	profile, err := h.users.RegisterMobile(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, profile)
}

func (h *usersHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid user id")
		return
	}

	var req users.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	profile, err := h.users.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, profile)
}

func (h *usersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, profiles)
}

func (h *usersHandler) mobileProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeDenial(w, r, access.ReasonUnauthenticated)
		return
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		writeBadRequest(w, r, "invalid user id in token")
		return
	}

	profile, err := h.users.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, profile)
}
