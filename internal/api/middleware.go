// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/trailhead/trailhead/internal/access"
	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/observability"
)

type contextKey int

const claimsKey contextKey = iota

// ClaimsFromContext returns the verified identity attached by the policy
// middleware, or false for an anonymous request.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// bearerToken extracts the token from an Authorization header. Empty when
// the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// guard returns middleware enforcing a single endpoint policy. Token
// verification failures on a restricted endpoint surface their own code;
// on a public endpoint a bad token degrades to anonymous access.
func guard(policy access.Policy, issuer *auth.TokenIssuer, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var claims *auth.Claims
			if token := bearerToken(r); token != "" {
				verified, err := issuer.Verify(token)
				if err != nil {
					if decision := access.Decide(policy, nil); !decision.Allowed {
						metrics.AuthzDenialsTotal.WithLabelValues(string(access.ReasonUnauthenticated)).Inc()
						writeError(w, r, logger, err)
						return
					}
				} else {
					claims = verified
				}
			}

			decision := access.Decide(policy, claims)
			if !decision.Allowed {
				metrics.AuthzDenialsTotal.WithLabelValues(string(decision.Reason)).Inc()
				writeDenial(w, r, decision.Reason)
				return
			}

			if claims != nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeDenial(w http.ResponseWriter, r *http.Request, reason access.Reason) {
	switch reason {
	case access.ReasonUnauthenticated:
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, errorResponse{
			Error:   "unauthorized",
			Code:    "AUTH_UNAUTHORIZED",
			Message: "authentication required",
		})
	case access.ReasonWrongPlatform:
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, errorResponse{
			Error:   "forbidden",
			Code:    "AUTH_FORBIDDEN_PLATFORM",
			Message: "access restricted on this platform",
		})
	default:
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, errorResponse{
			Error:   "forbidden",
			Code:    "AUTH_FORBIDDEN_ROLE",
			Message: "insufficient role",
		})
	}
}

// requestLogger logs each request after it completes and feeds the request
// counter.
func requestLogger(logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
