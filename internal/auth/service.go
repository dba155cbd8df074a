// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified against when a user doesn't exist so the
// lookup-miss path costs the same as a real verification. It is a bcrypt
// cost 10 digest that matches no password.
//
//nolint:gosec // G101: intentionally fake digest for timing equalization, not a credential.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Fixed operation outcomes returned to the boundary layer.
const (
	MsgResetCodeSent = "Reset token sent to email"
	MsgPasswordReset = "Password reset successfully"
)

// ResetNotifier delivers a reset code to a user out-of-band. A delivery
// failure fails the forgot-password operation.
type ResetNotifier interface {
	SendResetCode(ctx context.Context, email, name, code string) error
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User  Profile `json:"user"`
	Token string  `json:"token"`
}

// Service provides authentication operations: credential validation, login,
// and the forgot/reset password flow.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	issuer   *TokenIssuer
	notifier ResetNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, issuer *TokenIssuer, notifier ResetNotifier, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("reset notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		hasher:   hasher,
		issuer:   issuer,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ValidateCredentials checks an email/password pair and returns the matching
// user's profile. Unknown email and wrong password produce the identical
// AUTH_INVALID_CREDENTIALS failure; the password hash never leaves this
// method. The dummy verification on the miss path keeps response time
// consistent to prevent email enumeration through timing.
func (s *Service) ValidateCredentials(ctx context.Context, email, password string) (*Profile, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		return nil, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	}

	profile := user.Profile()
	return &profile, nil
}

// Login issues a bearer token for an already-validated user. Credential
// checking is ValidateCredentials' job; keeping session creation separate
// lets the boundary compose the two.
func (s *Service) Login(ctx context.Context, user *Profile) (*LoginResult, error) {
	if user == nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").Errorf("user is required")
	}

	token, err := s.issuer.Issue(user.ID, user.Name, user.Role)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String(), "role", string(user.Role))

	return &LoginResult{User: *user, Token: token}, nil
}

// ForgotPassword starts a password reset: it generates a code, stores it
// with a 15-minute expiry in one write, and hands the plaintext code to the
// notifier. Unknown emails fail with AUTH_NOT_FOUND; whether that is
// disclosed to the caller is the boundary's decision, not this service's.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_NOT_FOUND").
				Wrapf(err, "no user with that email")
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	code, err := GenerateResetCode()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset code").
			Wrap(err)
	}

	expiresAt := s.now().Add(ResetCodeExpiry)
	if err := s.users.SetResetToken(ctx, user.ID, code, expiresAt); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			Wrap(err)
	}

	if err := s.notifier.SendResetCode(ctx, user.Email, user.Name, code); err != nil {
		return "", oops.Code("RESET_NOTIFY_FAILED").
			With("operation", "send reset code").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "reset code issued", "user_id", user.ID.String())

	return MsgResetCodeSent, nil
}

// ResetPassword completes a password reset. The token is single-use: the
// clearing update is guarded by the token still being present, so of two
// concurrent resets at most one succeeds. An absent expiry counts as
// already expired, never as valid-forever. Failures leave the user record
// untouched.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if token == "" {
		return "", oops.Code("RESET_TOKEN_INVALID").Errorf("reset token cannot be empty")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return "", err
	}

	user, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_TOKEN_INVALID").Errorf("invalid or expired reset token")
		}
		return "", oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}

	if user.ResetExpiresAt == nil || s.now().After(*user.ResetExpiresAt) {
		return "", oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.users.ResetPassword(ctx, token, passwordHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			// A concurrent reset won the race and cleared the token.
			return "", oops.Code("RESET_TOKEN_INVALID").Errorf("invalid or expired reset token")
		}
		return "", oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())

	return MsgPasswordReset, nil
}
