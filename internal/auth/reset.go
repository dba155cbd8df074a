// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"crypto/rand"
	"time"

	"github.com/samber/oops"
)

// Reset code configuration.
const (
	ResetCodeLength = 6
	ResetCodeExpiry = 15 * time.Minute
)

// resetCodeAlphabet is the character set for reset codes. 62 characters;
// codes are typed from an email, so stay alphanumeric.
const resetCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateResetCode creates a cryptographically random alphanumeric code of
// ResetCodeLength characters. The caller is responsible for persisting it.
func GenerateResetCode() (string, error) {
	// Rejection sampling keeps the distribution uniform: 62 does not divide
	// 256, so raw modulo would bias the low characters.
	const max = byte(256 - 256%len(resetCodeAlphabet))

	code := make([]byte, 0, ResetCodeLength)
	buf := make([]byte, ResetCodeLength*2)
	for len(code) < ResetCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("RESET_CODE_GENERATE_FAILED").Wrap(err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			code = append(code, resetCodeAlphabet[int(b)%len(resetCodeAlphabet)])
			if len(code) == ResetCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
