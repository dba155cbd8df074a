// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package trails manages the learning-trail catalog.
package trails

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Sentinel errors returned by repositories.
var (
	ErrNotFound      = errors.New("trail not found")
	ErrAlreadyExists = errors.New("trail already exists")
)

// Field limits enforced at the service boundary.
const (
	MinNameLength        = 3
	MaxNameLength        = 60
	MinDescriptionLength = 20
	MaxSearchLength      = 100
)

// Pagination bounds for listing.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Trail is one entry in the catalog. Subtitle is unique across trails.
type Trail struct {
	ID               ulid.ULID `json:"id"`
	Name             string    `json:"name"`
	Subtitle         string    `json:"subtitle"`
	Description      string    `json:"description"`
	VideoTitle       *string   `json:"video_title,omitempty"`
	VideoDescription *string   `json:"video_description,omitempty"`
	References       *string   `json:"references,omitempty"`
	IframeReferences *string   `json:"iframe_references,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PageMeta describes the window a listing covers.
type PageMeta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Skip    int  `json:"skip"`
	HasMore bool `json:"hasMore"`
}

// Page is a listing result: the window plus where it sits in the whole.
type Page struct {
	Data []*Trail `json:"data"`
	Meta PageMeta `json:"meta"`
}

// ListQuery selects a window of the catalog. Search, when set, matches
// name or subtitle case-insensitively.
type ListQuery struct {
	Limit  int
	Skip   int
	Search string
}

// Repository is the persistence contract for trails.
type Repository interface {
	List(ctx context.Context, q ListQuery) ([]*Trail, error)
	Count(ctx context.Context, search string) (int, error)
	GetByID(ctx context.Context, id ulid.ULID) (*Trail, error)
	GetBySubtitle(ctx context.Context, subtitle string) (*Trail, error)
	Create(ctx context.Context, trail *Trail) error
	Update(ctx context.Context, trail *Trail) error
	Delete(ctx context.Context, id ulid.ULID) error
}

func validateName(field, value string) error {
	if len(value) < MinNameLength || len(value) > MaxNameLength {
		return oops.Code("TRAIL_INVALID").
			With("field", field).
			Errorf("%s must be between %d and %d characters", field, MinNameLength, MaxNameLength)
	}
	return nil
}

func validateDescription(value string) error {
	if len(value) < MinDescriptionLength {
		return oops.Code("TRAIL_INVALID").
			With("field", "description").
			Errorf("description must be at least %d characters", MinDescriptionLength)
	}
	return nil
}
