// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/auth"
)

func newMockRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock pool")
	t.Cleanup(mock.Close)
	return NewUserRepository(mock), mock
}

func userRow(user *auth.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "name", "password_hash", "role",
		"reset_token", "reset_token_expires_at", "created_at", "updated_at",
	}).AddRow(
		user.ID.String(), user.Email, user.Name, user.PasswordHash, string(user.Role),
		user.ResetToken, user.ResetExpiresAt, user.CreatedAt, user.UpdatedAt,
	)
}

func sampleUser() *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.User{
		ID:           ulid.Make(),
		Email:        "hiker@example.com",
		Name:         "Hiker",
		PasswordHash: "$2a$10$hash",
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts user", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.Name, user.PasswordHash,
				string(user.Role), user.ResetToken, user.ResetExpiresAt,
				user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, user))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to already exists", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.Name, user.PasswordHash,
				string(user.Role), user.ResetToken, user.ResetExpiresAt,
				user.CreatedAt, user.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := repo.Create(ctx, user)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrAlreadyExists)
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("returns user", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("HIKER@example.com").
			WillReturnRows(userRow(user))

		got, err := repo.GetByEmail(ctx, "HIKER@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.Email, got.Email)
		assert.Equal(t, user.Role, got.Role)
	})

	t.Run("missing user maps to not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database error surfaces", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("hiker@example.com").
			WillReturnError(errors.New("connection refused"))

		_, err := repo.GetByEmail(ctx, "hiker@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestUserRepository_GetByResetToken(t *testing.T) {
	ctx := context.Background()

	t.Run("returns holder of token", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()
		code := "ABC123"
		expires := time.Now().Add(10 * time.Minute)
		user.ResetToken = &code
		user.ResetExpiresAt = &expires

		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE reset_token = \$1`).
			WithArgs("ABC123").
			WillReturnRows(userRow(user))

		got, err := repo.GetByResetToken(ctx, "ABC123")
		require.NoError(t, err)
		require.NotNil(t, got.ResetToken)
		assert.Equal(t, "ABC123", *got.ResetToken)
	})

	t.Run("unknown token maps to not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE reset_token = \$1`).
			WithArgs("NOSUCH").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByResetToken(ctx, "NOSUCH")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_List(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	first := sampleUser()
	second := sampleUser()
	second.Email = "admin@example.com"
	second.Role = auth.RoleAdmin

	rows := userRow(first)
	rows.AddRow(
		second.ID.String(), second.Email, second.Name, second.PasswordHash, string(second.Role),
		second.ResetToken, second.ResetExpiresAt, second.CreatedAt, second.UpdatedAt,
	)

	mock.ExpectQuery(`SELECT (.+) FROM users\s+ORDER BY created_at`).
		WillReturnRows(rows)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, first.Email, users[0].Email)
	assert.Equal(t, auth.RoleAdmin, users[1].Role)
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates user", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(user.ID.String(), user.Email, user.Name, user.PasswordHash,
				string(user.Role), user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Update(ctx, user))
	})

	t.Run("missing user maps to not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(user.ID.String(), user.Email, user.Name, user.PasswordHash,
				string(user.Role), user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, user)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_SetResetToken(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	id := ulid.Make()
	expires := time.Now().Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE users SET\s+reset_token = \$2`).
		WithArgs(id.String(), "ABC123", expires).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.SetResetToken(ctx, id, "ABC123", expires))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes token and replaces password", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec(`UPDATE users SET\s+password_hash = \$2`).
			WithArgs("ABC123", "$2a$10$newhash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.ResetPassword(ctx, "ABC123", "$2a$10$newhash"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already-consumed token maps to not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec(`UPDATE users SET\s+password_hash = \$2`).
			WithArgs("ABC123", "$2a$10$newhash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.ResetPassword(ctx, "ABC123", "$2a$10$newhash")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("hiker@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmail(ctx, "hiker@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}
