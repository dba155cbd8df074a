// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the token validity window used when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims are the identity fields embedded in an issued bearer token.
// Subject carries the user ID; Username the display name.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// TokenIssuer mints and verifies signed bearer tokens. The signing secret
// and TTL are fixed at construction; verification is pure.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer with the given secret and TTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}, nil
}

// Issue signs a token carrying {sub, username, role} with the configured
// expiry.
func (i *TokenIssuer) Issue(id ulid.ULID, username string, role Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Username: username,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a signed token, returning its claims.
// Failures carry one of three codes: TOKEN_EXPIRED, TOKEN_BAD_SIGNATURE,
// or TOKEN_MALFORMED.
func (i *TokenIssuer) Verify(signed string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, oops.Code("TOKEN_EXPIRED").Errorf("token has expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, oops.Code("TOKEN_BAD_SIGNATURE").Errorf("token signature is invalid")
		default:
			return nil, oops.Code("TOKEN_MALFORMED").Wrap(err)
		}
	}
	if !token.Valid {
		return nil, oops.Code("TOKEN_MALFORMED").Errorf("token is invalid")
	}
	return claims, nil
}
