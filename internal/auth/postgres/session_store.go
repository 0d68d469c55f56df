// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// SessionStore implements auth.SessionStore on the users table.
//
// The token lives on the user row, so Put is one UPDATE statement: replacing
// a user's session is atomic and the previous token becomes unresolvable in
// the same write.
type SessionStore struct {
	pool pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Put records the token hash for the user, overwriting any previous one.
func (s *SessionStore) Put(ctx context.Context, userID ulid.ULID, tokenHash string, createdAt time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE users SET session_token = $2, session_created_at = $3, updated_at = $4
		WHERE id = $1
	`, userID.String(), tokenHash, createdAt, time.Now())
	if err != nil {
		return oops.Code("SESSION_PUT_FAILED").
			With("operation", "store session token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_USER_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Get returns the user id and creation time holding the token hash.
func (s *SessionStore) Get(ctx context.Context, tokenHash string) (ulid.ULID, time.Time, error) {
	var (
		idStr     string
		createdAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_created_at FROM users WHERE session_token = $1
	`, tokenHash).Scan(&idStr, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, time.Time{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, time.Time{}, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, time.Time{}, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	var created time.Time
	if createdAt != nil {
		created = *createdAt
	}
	return id, created, nil
}

// Delete clears the token if some user holds it.
func (s *SessionStore) Delete(ctx context.Context, tokenHash string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE users SET session_token = NULL, session_created_at = NULL, updated_at = $2
		WHERE session_token = $1
	`, tokenHash, time.Now())
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "clear session token").
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
