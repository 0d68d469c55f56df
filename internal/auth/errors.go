// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import "errors"

// Sentinel errors shared across the auth core. Services wrap these with
// oops codes; callers test with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUser is returned when registering an email that already exists.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidInput is returned for malformed or missing required data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidField is returned when a predicate or update names an
	// unrecognized user field.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidToken is returned when redeeming an unknown or consumed
	// reset token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated is returned when no identity could be resolved from
	// a request. It is an expected control-flow outcome, not a crash.
	ErrUnauthenticated = errors.New("unauthenticated")
)
