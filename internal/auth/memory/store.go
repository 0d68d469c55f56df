// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package memory provides an in-process auth store for tests and
// single-node deployments without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// Store implements auth.UserRepository and auth.SessionStore over a single
// mutex-guarded map. Session and reset tokens live on the user record, so
// both interfaces share one source of truth and read-modify-write sequences
// on a user are serialized by the store lock.
type Store struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// copyUser returns a defensive copy so callers cannot mutate stored state.
func copyUser(u *auth.User) *auth.User {
	out := *u
	if u.SessionToken != nil {
		v := *u.SessionToken
		out.SessionToken = &v
	}
	if u.SessionCreatedAt != nil {
		v := *u.SessionCreatedAt
		out.SessionCreatedAt = &v
	}
	if u.ResetToken != nil {
		v := *u.ResetToken
		out.ResetToken = &v
	}
	return &out
}

// Create stores a new user. Email matching is case-sensitive and exact.
func (s *Store) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return oops.Code("USER_DUPLICATE").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateUser)
	}
	if _, exists := s.byID[user.ID]; exists {
		return oops.Code("USER_DUPLICATE").
			With("id", user.ID.String()).
			Wrap(auth.ErrDuplicateUser)
	}

	s.byID[user.ID] = copyUser(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

// FindBy returns the first user matching all predicate fields exactly.
func (s *Store) FindBy(_ context.Context, predicate map[string]any) (*auth.User, error) {
	if err := auth.ValidateFindFields(predicate); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Fast paths for the unique keys.
	if v, ok := predicate[auth.FieldID]; ok && len(predicate) == 1 {
		id, ok := v.(ulid.ULID)
		if !ok {
			return nil, oops.Code("USER_BAD_PREDICATE_VALUE").
				With("field", auth.FieldID).
				Wrapf(auth.ErrInvalidInput, "id predicate must be a ULID")
		}
		if u, ok := s.byID[id]; ok {
			return copyUser(u), nil
		}
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	for _, u := range s.byID {
		match, err := matches(u, predicate)
		if err != nil {
			return nil, err
		}
		if match {
			return copyUser(u), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// matches reports whether the user satisfies every predicate field.
func matches(u *auth.User, predicate map[string]any) (bool, error) {
	for field, raw := range predicate {
		switch field {
		case auth.FieldID:
			id, ok := raw.(ulid.ULID)
			if !ok {
				return false, oops.Code("USER_BAD_PREDICATE_VALUE").
					With("field", field).
					Wrapf(auth.ErrInvalidInput, "id predicate must be a ULID")
			}
			if u.ID.Compare(id) != 0 {
				return false, nil
			}
		case auth.FieldEmail:
			v, ok := raw.(string)
			if !ok {
				return false, oops.Code("USER_BAD_PREDICATE_VALUE").
					With("field", field).
					Wrapf(auth.ErrInvalidInput, "email predicate must be a string")
			}
			if u.Email != v {
				return false, nil
			}
		case auth.FieldSessionToken:
			v, ok := raw.(string)
			if !ok {
				return false, oops.Code("USER_BAD_PREDICATE_VALUE").
					With("field", field).
					Wrapf(auth.ErrInvalidInput, "session_token predicate must be a string")
			}
			if u.SessionToken == nil || *u.SessionToken != v {
				return false, nil
			}
		case auth.FieldResetToken:
			v, ok := raw.(string)
			if !ok {
				return false, oops.Code("USER_BAD_PREDICATE_VALUE").
					With("field", field).
					Wrapf(auth.ErrInvalidInput, "reset_token predicate must be a string")
			}
			if u.ResetToken == nil || *u.ResetToken != v {
				return false, nil
			}
		}
	}
	return true, nil
}

// Update applies a partial update under the store lock, so concurrent
// writers to the same user serialize and the final state is one full write.
func (s *Store) Update(_ context.Context, id ulid.ULID, fields map[string]any) error {
	if err := auth.ValidateUpdateFields(fields); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}

	if err := applyFields(u, fields); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	return nil
}

// applyFields mutates the user in place. Caller holds the write lock.
func applyFields(u *auth.User, fields map[string]any) error {
	for field, raw := range fields {
		switch field {
		case auth.FieldEmail:
			v, ok := raw.(string)
			if !ok {
				return badUpdateValue(field, "string")
			}
			u.Email = v
		case auth.FieldPasswordHash:
			v, ok := raw.(string)
			if !ok {
				return badUpdateValue(field, "string")
			}
			u.PasswordHash = v
		case auth.FieldSessionToken:
			v, err := optionalString(field, raw)
			if err != nil {
				return err
			}
			u.SessionToken = v
		case auth.FieldSessionCreatedAt:
			if raw == nil {
				u.SessionCreatedAt = nil
				continue
			}
			v, ok := raw.(time.Time)
			if !ok {
				return badUpdateValue(field, "time.Time")
			}
			u.SessionCreatedAt = &v
		case auth.FieldResetToken:
			v, err := optionalString(field, raw)
			if err != nil {
				return err
			}
			u.ResetToken = v
		}
	}
	return nil
}

func optionalString(field string, raw any) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	v, ok := raw.(string)
	if !ok {
		return nil, badUpdateValue(field, "string or nil")
	}
	return &v, nil
}

func badUpdateValue(field, want string) error {
	return oops.Code("USER_BAD_UPDATE_VALUE").
		With("field", field).
		Wrapf(auth.ErrInvalidInput, "%s must be a %s", field, want)
}

// Put records the session token hash for the user, overwriting any prior one.
func (s *Store) Put(_ context.Context, userID ulid.ULID, tokenHash string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return oops.Code("SESSION_USER_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}

	u.SessionToken = &tokenHash
	u.SessionCreatedAt = &createdAt
	u.UpdatedAt = time.Now()
	return nil
}

// Get returns the user id and creation time holding the token hash.
func (s *Store) Get(_ context.Context, tokenHash string) (ulid.ULID, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.byID {
		if u.SessionToken != nil && *u.SessionToken == tokenHash {
			createdAt := time.Time{}
			if u.SessionCreatedAt != nil {
				createdAt = *u.SessionCreatedAt
			}
			return u.ID, createdAt, nil
		}
	}
	return ulid.ULID{}, time.Time{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// Delete clears the token if some user holds it.
func (s *Store) Delete(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		if u.SessionToken != nil && *u.SessionToken == tokenHash {
			u.SessionToken = nil
			u.SessionCreatedAt = nil
			u.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// Compile-time interface checks.
var (
	_ auth.UserRepository = (*Store)(nil)
	_ auth.SessionStore   = (*Store)(nil)
)
