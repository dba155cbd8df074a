// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package postgres implements the trail repository backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/trails"
)

type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const trailColumns = `id, name, subtitle, description, video_title,
	       video_description, references_url, iframe_references,
	       created_at, updated_at`

// likeEscaper neutralizes LIKE metacharacters so a search term matches
// literally; backslash is PostgreSQL's default LIKE escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// TrailRepository implements trails.Repository using PostgreSQL.
type TrailRepository struct {
	pool poolIface
}

// NewTrailRepository creates a new TrailRepository.
func NewTrailRepository(pool poolIface) *TrailRepository {
	return &TrailRepository{pool: pool}
}

// List retrieves a window of trails newest-first. A non-empty search matches
// name or subtitle with ILIKE.
func (r *TrailRepository) List(ctx context.Context, q trails.ListQuery) ([]*trails.Trail, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if q.Search != "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+trailColumns+`
			FROM trails
			WHERE name ILIKE '%' || $1 || '%' OR subtitle ILIKE '%' || $1 || '%'
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, likeEscaper.Replace(q.Search), q.Limit, q.Skip)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+trailColumns+`
			FROM trails
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, q.Limit, q.Skip)
	}
	if err != nil {
		return nil, oops.Code("TRAIL_LIST_FAILED").
			With("operation", "list trails").
			Wrap(err)
	}
	defer rows.Close()

	var out []*trails.Trail
	for rows.Next() {
		trail, err := scanTrail(rows)
		if err != nil {
			return nil, oops.Code("TRAIL_LIST_FAILED").
				With("operation", "scan trail row").
				Wrap(err)
		}
		out = append(out, trail)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TRAIL_LIST_FAILED").
			With("operation", "iterate trails").
			Wrap(err)
	}
	return out, nil
}

// Count returns how many trails match the search term, or all trails when
// the term is empty.
func (r *TrailRepository) Count(ctx context.Context, search string) (int, error) {
	var (
		count int
		err   error
	)
	if search != "" {
		err = r.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM trails
			WHERE name ILIKE '%' || $1 || '%' OR subtitle ILIKE '%' || $1 || '%'
		`, likeEscaper.Replace(search)).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trails`).Scan(&count)
	}
	if err != nil {
		return 0, oops.Code("TRAIL_COUNT_FAILED").
			With("operation", "count trails").
			Wrap(err)
	}
	return count, nil
}

// GetByID retrieves a trail by ID.
func (r *TrailRepository) GetByID(ctx context.Context, id ulid.ULID) (*trails.Trail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+trailColumns+`
		FROM trails
		WHERE id = $1
	`, id.String())

	trail, err := scanTrail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TRAIL_NOT_FOUND").
			With("id", id.String()).
			Wrap(trails.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TRAIL_GET_BY_ID_FAILED").
			With("operation", "get trail by id").
			With("id", id.String()).
			Wrap(err)
	}
	return trail, nil
}

// GetBySubtitle retrieves a trail by its exact subtitle.
func (r *TrailRepository) GetBySubtitle(ctx context.Context, subtitle string) (*trails.Trail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+trailColumns+`
		FROM trails
		WHERE subtitle = $1
	`, subtitle)

	trail, err := scanTrail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TRAIL_NOT_FOUND").
			With("subtitle", subtitle).
			Wrap(trails.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TRAIL_GET_BY_SUBTITLE_FAILED").
			With("operation", "get trail by subtitle").
			With("subtitle", subtitle).
			Wrap(err)
	}
	return trail, nil
}

// Create stores a new trail. A duplicate subtitle maps to
// trails.ErrAlreadyExists.
func (r *TrailRepository) Create(ctx context.Context, trail *trails.Trail) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO trails (
			id, name, subtitle, description, video_title,
			video_description, references_url, iframe_references,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		trail.ID.String(),
		trail.Name,
		trail.Subtitle,
		trail.Description,
		trail.VideoTitle,
		trail.VideoDescription,
		trail.References,
		trail.IframeReferences,
		trail.CreatedAt,
		trail.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("TRAIL_ALREADY_EXISTS").
				With("subtitle", trail.Subtitle).
				Wrap(trails.ErrAlreadyExists)
		}
		return oops.Code("TRAIL_CREATE_FAILED").
			With("operation", "insert trail").
			With("subtitle", trail.Subtitle).
			Wrap(err)
	}
	return nil
}

// Update updates an existing trail.
func (r *TrailRepository) Update(ctx context.Context, trail *trails.Trail) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE trails SET
			name = $2,
			subtitle = $3,
			description = $4,
			video_title = $5,
			video_description = $6,
			references_url = $7,
			iframe_references = $8,
			updated_at = $9
		WHERE id = $1
	`,
		trail.ID.String(),
		trail.Name,
		trail.Subtitle,
		trail.Description,
		trail.VideoTitle,
		trail.VideoDescription,
		trail.References,
		trail.IframeReferences,
		trail.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("TRAIL_ALREADY_EXISTS").
				With("subtitle", trail.Subtitle).
				Wrap(trails.ErrAlreadyExists)
		}
		return oops.Code("TRAIL_UPDATE_FAILED").
			With("operation", "update trail").
			With("id", trail.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TRAIL_NOT_FOUND").
			With("id", trail.ID.String()).
			Wrap(trails.ErrNotFound)
	}
	return nil
}

// Delete removes a trail.
func (r *TrailRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM trails WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("TRAIL_DELETE_FAILED").
			With("operation", "delete trail").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TRAIL_NOT_FOUND").
			With("id", id.String()).
			Wrap(trails.ErrNotFound)
	}
	return nil
}

func scanTrail(row pgx.Row) (*trails.Trail, error) {
	var (
		idStr            string
		name             string
		subtitle         string
		description      string
		videoTitle       *string
		videoDescription *string
		references       *string
		iframeReferences *string
		createdAt        time.Time
		updatedAt        time.Time
	)

	err := row.Scan(
		&idStr,
		&name,
		&subtitle,
		&description,
		&videoTitle,
		&videoDescription,
		&references,
		&iframeReferences,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse trail id").With("id", idStr).Wrap(err)
	}

	return &trails.Trail{
		ID:               id,
		Name:             name,
		Subtitle:         subtitle,
		Description:      description,
		VideoTitle:       videoTitle,
		VideoDescription: videoDescription,
		References:       references,
		IframeReferences: iframeReferences,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}
