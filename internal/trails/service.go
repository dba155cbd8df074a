// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package trails

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CreateRequest carries the fields for a new trail.
type CreateRequest struct {
	Name             string  `json:"name"`
	Subtitle         string  `json:"subtitle"`
	Description      string  `json:"description"`
	VideoTitle       *string `json:"video_title,omitempty"`
	VideoDescription *string `json:"video_description,omitempty"`
	References       *string `json:"references,omitempty"`
	IframeReferences *string `json:"iframe_references,omitempty"`
}

// UpdateRequest carries a partial update. Nil fields keep current values.
type UpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	Subtitle         *string `json:"subtitle,omitempty"`
	Description      *string `json:"description,omitempty"`
	VideoTitle       *string `json:"video_title,omitempty"`
	VideoDescription *string `json:"video_description,omitempty"`
	References       *string `json:"references,omitempty"`
	IframeReferences *string `json:"iframe_references,omitempty"`
}

// Service provides the catalog operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(repo Repository, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("trail repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}, nil
}

// List returns a window of the catalog newest-first. Out-of-range limits
// are clamped rather than rejected, matching the tolerant pagination the
// mobile clients rely on.
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	if len(q.Search) > MaxSearchLength {
		return nil, oops.Code("TRAIL_INVALID").
			With("field", "search").
			Errorf("search term cannot exceed %d characters", MaxSearchLength)
	}

	items, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, oops.Code("TRAIL_LIST_FAILED").
			With("operation", "list trails").
			Wrap(err)
	}
	total, err := s.repo.Count(ctx, q.Search)
	if err != nil {
		return nil, oops.Code("TRAIL_LIST_FAILED").
			With("operation", "count trails").
			Wrap(err)
	}

	if items == nil {
		items = []*Trail{}
	}
	return &Page{
		Data: items,
		Meta: PageMeta{
			Total:   total,
			Limit:   q.Limit,
			Skip:    q.Skip,
			HasMore: q.Skip+q.Limit < total,
		},
	}, nil
}

// Get returns one trail by ID.
func (s *Service) Get(ctx context.Context, id ulid.ULID) (*Trail, error) {
	trail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TRAIL_NOT_FOUND").Wrapf(err, "trail not found")
		}
		return nil, oops.Code("TRAIL_GET_FAILED").
			With("operation", "get trail").
			With("id", id.String()).
			Wrap(err)
	}
	return trail, nil
}

// Create adds a trail. The subtitle must not already be taken.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Trail, error) {
	if err := validateName("name", req.Name); err != nil {
		return nil, err
	}
	if err := validateName("subtitle", req.Subtitle); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetBySubtitle(ctx, req.Subtitle)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("TRAIL_CREATE_FAILED").
			With("operation", "check subtitle").
			Wrap(err)
	}
	if existing != nil {
		return nil, oops.Code("TRAIL_ALREADY_EXISTS").
			With("subtitle", req.Subtitle).
			Wrapf(ErrAlreadyExists, "a trail with that subtitle already exists")
	}

	now := s.now().UTC()
	trail := &Trail{
		ID:               ulid.Make(),
		Name:             req.Name,
		Subtitle:         req.Subtitle,
		Description:      req.Description,
		VideoTitle:       req.VideoTitle,
		VideoDescription: req.VideoDescription,
		References:       req.References,
		IframeReferences: req.IframeReferences,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, trail); err != nil {
		// The subtitle check races with concurrent creation; the unique
		// index is the authority.
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("TRAIL_ALREADY_EXISTS").
				With("subtitle", req.Subtitle).
				Wrapf(err, "a trail with that subtitle already exists")
		}
		return nil, oops.Code("TRAIL_CREATE_FAILED").
			With("operation", "create trail").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "trail created", "trail_id", trail.ID.String(), "subtitle", trail.Subtitle)

	return trail, nil
}

// Update applies a partial update to a trail.
func (s *Service) Update(ctx context.Context, id ulid.ULID, req UpdateRequest) (*Trail, error) {
	trail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if err := validateName("name", *req.Name); err != nil {
			return nil, err
		}
		trail.Name = *req.Name
	}
	if req.Subtitle != nil {
		if err := validateName("subtitle", *req.Subtitle); err != nil {
			return nil, err
		}
		trail.Subtitle = *req.Subtitle
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
		trail.Description = *req.Description
	}
	if req.VideoTitle != nil {
		trail.VideoTitle = req.VideoTitle
	}
	if req.VideoDescription != nil {
		trail.VideoDescription = req.VideoDescription
	}
	if req.References != nil {
		trail.References = req.References
	}
	if req.IframeReferences != nil {
		trail.IframeReferences = req.IframeReferences
	}
	trail.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, trail); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("TRAIL_ALREADY_EXISTS").
				With("subtitle", trail.Subtitle).
				Wrapf(err, "a trail with that subtitle already exists")
		}
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TRAIL_NOT_FOUND").Wrapf(err, "trail not found")
		}
		return nil, oops.Code("TRAIL_UPDATE_FAILED").
			With("operation", "update trail").
			With("id", id.String()).
			Wrap(err)
	}

	return trail, nil
}

// Delete removes a trail.
func (s *Service) Delete(ctx context.Context, id ulid.ULID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("TRAIL_NOT_FOUND").Wrapf(err, "trail not found")
		}
		return oops.Code("TRAIL_DELETE_FAILED").
			With("operation", "delete trail").
			With("id", id.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "trail deleted", "trail_id", id.String())

	return nil
}
