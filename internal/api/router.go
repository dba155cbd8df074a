// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package api is the HTTP boundary. It wires each route to a handler and an
// access policy; handlers translate between JSON and the services, and the
// policy middleware decides who gets through before a handler ever runs.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/access"
	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/trails"
	"github.com/trailhead/trailhead/internal/users"
)

// Deps carries everything the router needs. All fields are required.
type Deps struct {
	Auth    *auth.Service
	Users   *users.Service
	Trails  *trails.Service
	Issuer  *auth.TokenIssuer
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Auth == nil:
		return oops.Errorf("auth service is required")
	case d.Users == nil:
		return oops.Errorf("users service is required")
	case d.Trails == nil:
		return oops.Errorf("trails service is required")
	case d.Issuer == nil:
		return oops.Errorf("token issuer is required")
	case d.Metrics == nil:
		return oops.Errorf("metrics are required")
	case d.Logger == nil:
		return oops.Errorf("logger is required")
	}
	return nil
}

// NewRouter builds the route table. Every route names its policy inline so
// the whole access surface is readable in one place.
func NewRouter(deps Deps) (*chi.Mux, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	authH := &authHandler{auth: deps.Auth, users: deps.Users, metrics: deps.Metrics, logger: deps.Logger}
	usersH := &usersHandler{users: deps.Users, logger: deps.Logger}
	trailsH := &trailsHandler{trails: deps.Trails, logger: deps.Logger}

	policy := func(p access.Policy) func(next http.Handler) http.Handler {
		return guard(p, deps.Issuer, deps.Metrics, deps.Logger)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(deps.Logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Route("/auth", func(r chi.Router) {
		r.With(policy(access.Public)).Post("/login", authH.login)
		r.With(policy(access.Authenticated)).Get("/profile", authH.profile)
		r.With(policy(access.Public)).Post("/forgot-password", authH.forgotPassword)
		r.With(policy(access.Public)).Post("/reset-password", authH.resetPassword)
	})

	r.Route("/users", func(r chi.Router) {
		r.With(policy(access.Public)).Post("/", usersH.registerAdmin)
		r.With(policy(access.Public)).Post("/mobile", usersH.registerMobile)
		r.With(policy(access.Authenticated)).Put("/{id}", usersH.update)
		r.With(policy(access.AdminWebOnly)).Get("/all", usersH.listAll)
		r.With(policy(access.MobileOnly)).Get("/mobile/profile", usersH.mobileProfile)
	})

	r.Route("/trails", func(r chi.Router) {
		r.With(policy(access.Public)).Get("/", trailsH.list)
		r.With(policy(access.Public)).Get("/{id}", trailsH.get)
		r.With(policy(access.Authenticated)).Post("/", trailsH.create)
		r.With(policy(access.Authenticated)).Put("/{id}", trailsH.update)
		r.With(policy(access.Authenticated)).Delete("/{id}", trailsH.delete)
	})

	return r, nil
}
