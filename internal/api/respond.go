// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/pkg/errutil"
)

// errorResponse is the JSON shape of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// messageResponse carries operations whose only result is a confirmation
// line, such as the password reset flow.
type messageResponse struct {
	Message string `json:"message"`
}

// statusForCode maps domain error codes to HTTP statuses. Codes without an
// entry are internal failures.
var statusForCode = map[string]int{
	"AUTH_INVALID_CREDENTIALS": http.StatusUnauthorized,
	"AUTH_UNAUTHORIZED":        http.StatusUnauthorized,
	"TOKEN_EXPIRED":            http.StatusUnauthorized,
	"TOKEN_BAD_SIGNATURE":      http.StatusUnauthorized,
	"TOKEN_MALFORMED":          http.StatusUnauthorized,

	"AUTH_NOT_FOUND":  http.StatusNotFound,
	"USER_NOT_FOUND":  http.StatusNotFound,
	"TRAIL_NOT_FOUND": http.StatusNotFound,

	"AUTH_INVALID_EMAIL":    http.StatusBadRequest,
	"AUTH_INVALID_PASSWORD": http.StatusBadRequest,
	"AUTH_EMPTY_PASSWORD":   http.StatusBadRequest,
	"USER_INVALID_NAME":     http.StatusBadRequest,
	"USER_ALREADY_EXISTS":   http.StatusBadRequest,
	"TRAIL_INVALID":         http.StatusBadRequest,
	"TRAIL_ALREADY_EXISTS":  http.StatusBadRequest,
	"RESET_TOKEN_INVALID":   http.StatusBadRequest,
	"RESET_TOKEN_EXPIRED":   http.StatusBadRequest,
}

func errorLabel(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// writeError translates a domain error into an HTTP reply. Known codes keep
// their message; anything unmapped is logged and collapsed to a generic 500
// so internals never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := ""
	if oopsErr, ok := oops.AsOops(err); ok {
		code = oopsErr.Code()
	}

	status, known := statusForCode[code]
	if !known {
		errutil.LogError(logger, "request failed", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		})
		return
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Error:   errorLabel(status),
		Code:    code,
		Message: err.Error(),
	})
}

// writeBadRequest rejects malformed input that never reached a service,
// such as unparseable JSON or a bad path parameter.
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{
		Error:   "bad_request",
		Message: message,
	})
}
