// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package auth provides authentication primitives for Trailhead: the user
// model and repository contract, password hashing, bearer token issuance,
// and the login / password-reset service.
package auth
