// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"

	"github.com/trailhead/trailhead/internal/access"
	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/users"
)

type authHandler struct {
	auth    *auth.Service
	users   *users.Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	profile, err := h.auth.ValidateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), profile)
	if err != nil {
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		writeError(w, r, h.logger, err)
		return
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

func (h *authHandler) profile(w http.ResponseWriter, r *http.Request) {
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

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *authHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	msg, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.metrics.ResetRequestsTotal.WithLabelValues("requested").Inc()
	render.Status(r, http.StatusOK)
	render.JSON(w, r, messageResponse{Message: msg})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *authHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	msg, err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.metrics.ResetRequestsTotal.WithLabelValues("completed").Inc()
	render.Status(r, http.StatusOK)
	render.JSON(w, r, messageResponse{Message: msg})
}
