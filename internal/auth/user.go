// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User field names recognized by UserRepository predicates and updates.
const (
	FieldID               = "id"
	FieldEmail            = "email"
	FieldPasswordHash     = "password_hash"
	FieldSessionToken     = "session_token"
	FieldSessionCreatedAt = "session_created_at"
	FieldResetToken       = "reset_token"
)

// MaxEmailLength bounds stored email addresses.
const MaxEmailLength = 250

// emailRegex is a permissive shape check: one @, non-empty local and domain
// parts, no whitespace. Deliverability is not this package's concern.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)

// User represents a credential record.
//
// SessionToken and ResetToken hold SHA-256 hashes of the issued tokens, never
// the plaintext. At most one of each is live per user; issuing a new token
// overwrites the previous one.
type User struct {
	ID               ulid.ULID
	Email            string
	PasswordHash     string
	SessionToken     *string
	SessionCreatedAt *time.Time
	ResetToken       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser creates a validated User with a fresh ULID.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").
			Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateEmail validates an email address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("USER_INVALID_EMAIL").
			Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("USER_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Wrapf(ErrInvalidInput, "email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("USER_INVALID_EMAIL").
			Wrapf(ErrInvalidInput, "email must contain a local part and a domain")
	}
	return nil
}

// findFields are the columns FindBy predicates may match on.
var findFields = map[string]struct{}{
	FieldID:           {},
	FieldEmail:        {},
	FieldSessionToken: {},
	FieldResetToken:   {},
}

// updateFields are the columns Update may modify.
var updateFields = map[string]struct{}{
	FieldEmail:            {},
	FieldPasswordHash:     {},
	FieldSessionToken:     {},
	FieldSessionCreatedAt: {},
	FieldResetToken:       {},
}

// ValidateFindFields checks that every predicate key names a queryable column.
func ValidateFindFields(predicate map[string]any) error {
	if len(predicate) == 0 {
		return oops.Code("USER_EMPTY_PREDICATE").
			Wrapf(ErrInvalidInput, "predicate cannot be empty")
	}
	for field := range predicate {
		if _, ok := findFields[field]; !ok {
			return oops.Code("USER_UNKNOWN_FIELD").
				With("field", field).
				Wrapf(ErrInvalidField, "unknown query field %q", field)
		}
	}
	return nil
}

// ValidateUpdateFields checks that every update key names a writable column.
func ValidateUpdateFields(fields map[string]any) error {
	if len(fields) == 0 {
		return oops.Code("USER_EMPTY_UPDATE").
			Wrapf(ErrInvalidInput, "update fields cannot be empty")
	}
	for field := range fields {
		if _, ok := updateFields[field]; !ok {
			return oops.Code("USER_UNKNOWN_FIELD").
				With("field", field).
				Wrapf(ErrInvalidField, "unknown update field %q", field)
		}
	}
	return nil
}

// UserRepository manages user persistence.
//
// Implementations must be safe for concurrent use; a partial update is applied
// as one atomic write so racing writers leave exactly one of the two states.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateUser if the email is
	// already registered (case-sensitive exact match).
	Create(ctx context.Context, user *User) error

	// FindBy returns the first user matching all predicate fields exactly.
	// Recognized fields: id, email, session_token, reset_token.
	// Returns ErrNotFound on zero matches, ErrInvalidField for unknown keys.
	FindBy(ctx context.Context, predicate map[string]any) (*User, error)

	// Update applies a partial update to the user with the given id.
	// A nil value clears a nullable column. Returns ErrNotFound if the id is
	// absent, ErrInvalidField for unknown keys. The update is visible to
	// other callers as soon as it returns.
	Update(ctx context.Context, id ulid.ULID, fields map[string]any) error
}
