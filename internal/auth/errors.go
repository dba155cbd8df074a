// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a uniqueness constraint is violated,
// such as registering an email that is already taken.
var ErrAlreadyExists = errors.New("already exists")
