// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package users manages account registration and maintenance on top of the
// auth user repository.
package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
)

// Registration carries the fields needed to create an account.
type Registration struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// UpdateRequest carries the fields an account update may change. Empty
// fields keep their current value.
type UpdateRequest struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

// Service provides account registration, lookup, and updates.
type Service struct {
	users     auth.UserRepository
	hasher    auth.PasswordHasher
	adminCode string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. adminCode gates admin registration; when
// empty, admin registration is disabled entirely.
func NewService(users auth.UserRepository, hasher auth.PasswordHasher, adminCode string, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		adminCode: adminCode,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// RegisterAdmin creates an admin account. The caller must present the
// configured admin code; the comparison is constant-time.
func (s *Service) RegisterAdmin(ctx context.Context, reg Registration, adminCode string) (*auth.Profile, error) {
	if s.adminCode == "" || subtle.ConstantTimeCompare([]byte(adminCode), []byte(s.adminCode)) != 1 {
		return nil, oops.Code("AUTH_UNAUTHORIZED").Errorf("invalid admin code")
	}
	return s.register(ctx, reg, auth.RoleAdmin)
}

// RegisterMobile creates a regular user account.
func (s *Service) RegisterMobile(ctx context.Context, reg Registration) (*auth.Profile, error) {
	return s.register(ctx, reg, auth.RoleUser)
}

func (s *Service) register(ctx context.Context, reg Registration, role auth.Role) (*auth.Profile, error) {
	email, err := auth.ValidateEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(reg.Password); err != nil {
		return nil, err
	}
	if reg.Name == "" {
		return nil, oops.Code("USER_INVALID_NAME").Errorf("name cannot be empty")
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("USER_REGISTER_FAILED").
			With("operation", "check email exists").
			Wrap(err)
	}
	if exists {
		return nil, oops.Code("USER_ALREADY_EXISTS").
			With("email", email).
			Wrapf(auth.ErrAlreadyExists, "email is already registered")
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, oops.Code("USER_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := s.now().UTC()
	user := &auth.User{
		ID:           ulid.Make(),
		Email:        email,
		Name:         reg.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The exists check races with concurrent registration; the unique
		// index is the authority.
		if errors.Is(err, auth.ErrAlreadyExists) {
			return nil, oops.Code("USER_ALREADY_EXISTS").
				With("email", email).
				Wrapf(err, "email is already registered")
		}
		return nil, oops.Code("USER_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", string(role))

	profile := user.Profile()
	return &profile, nil
}

// Update changes an account's email, name, or password. Empty request
// fields leave the current values in place.
func (s *Service) Update(ctx context.Context, id ulid.ULID, req UpdateRequest) (*auth.Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").Wrapf(err, "user not found")
		}
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if req.Email != "" {
		email, err := auth.ValidateEmail(req.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Password != "" {
		if err := auth.ValidatePassword(req.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, oops.Code("USER_UPDATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			return nil, oops.Code("USER_ALREADY_EXISTS").
				With("email", user.Email).
				Wrapf(err, "email is already registered")
		}
		if errors.Is(err, auth.ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").Wrapf(err, "user not found")
		}
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			Wrap(err)
	}

	profile := user.Profile()
	return &profile, nil
}

// List returns profiles for every account.
func (s *Service) List(ctx context.Context) ([]auth.Profile, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}

	profiles := make([]auth.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// GetProfile returns the profile for a single account.
func (s *Service) GetProfile(ctx context.Context, id ulid.ULID) (*auth.Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").Wrapf(err, "user not found")
		}
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	profile := user.Profile()
	return &profile, nil
}
