// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the coarse access level of a user. The two roles double as the
// platform identity: USER accounts belong to the mobile app, ADMIN accounts
// to the web dashboard.
type Role string

// Supported roles.
const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Password validation constraints.
const MinPasswordLength = 6

// User represents a registered account.
//
// ResetToken and ResetExpiresAt are both set while a password reset is
// pending and both nil otherwise, never exactly one. The reset code is
// stored as given; it must never be logged or serialized in responses.
type User struct {
	ID             ulid.ULID
	Email          string
	Name           string
	PasswordHash   string
	Role           Role
	ResetToken     *string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPendingReset reports whether a password reset is in flight.
func (u *User) HasPendingReset() bool {
	return u.ResetToken != nil && u.ResetExpiresAt != nil
}

// Profile is a User stripped of credential material. Everything that leaves
// the auth package travels as a Profile.
type Profile struct {
	ID        ulid.ULID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile returns the non-sensitive view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ValidateEmail validates and normalizes an email address.
// Returns the trimmed address or an error.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("invalid email address")
	}
	return email, nil
}

// ValidatePassword validates a plaintext password against account rules.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// UserRepository manages user persistence. It is the credential store the
// authentication service runs against; implementations must provide
// read-committed isolation per record and single-statement atomicity for
// the reset-clearing update.
type UserRepository interface {
	// Create stores a new user. Returns ErrAlreadyExists (wrapped) if the
	// email is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetToken retrieves the user holding the given reset token
	// (exact match).
	GetByResetToken(ctx context.Context, token string) (*User, error)

	// List returns all users.
	List(ctx context.Context) ([]*User, error)

	// Update updates name, email, password hash, and role for a user.
	Update(ctx context.Context, user *User) error

	// SetResetToken stores a reset token and its expiry on the user in a
	// single write, replacing any previous pending reset.
	SetResetToken(ctx context.Context, id ulid.ULID, token string, expiresAt time.Time) error

	// ResetPassword writes the new password hash and clears the reset token
	// and expiry in one atomic statement, guarded by the token still being
	// present. Returns ErrNotFound (wrapped) if no user holds the token,
	// including when a concurrent reset cleared it first.
	ResetPassword(ctx context.Context, token, passwordHash string) error

	// ExistsByEmail reports whether a user with the email exists
	// (case-insensitive).
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
