// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenBytes is the entropy of a session token (32 bytes = 64 hex chars).
const SessionTokenBytes = 32

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token goes to
// the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA-256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionStore persists the session token for each user.
//
// The store holds at most one token per user: Put replaces the previous token
// in a single atomic write, making it unresolvable. Expired tokens are not
// purged; SessionManager rejects them lazily on resolution.
type SessionStore interface {
	// Put records (tokenHash, createdAt) for the user, overwriting any
	// previous token. Returns ErrNotFound if the user does not exist.
	Put(ctx context.Context, userID ulid.ULID, tokenHash string, createdAt time.Time) error

	// Get returns the user id and creation time for a token hash.
	// Returns ErrNotFound if no user holds the token.
	Get(ctx context.Context, tokenHash string) (ulid.ULID, time.Time, error)

	// Delete clears the token if present and reports whether it was.
	// Deleting an absent token is not an error.
	Delete(ctx context.Context, tokenHash string) (bool, error)
}

// SessionManager issues, resolves, and destroys opaque session tokens.
//
// MaxAge controls the expiry policy: zero means sessions never expire, a
// positive duration bounds each session to created_at+MaxAge. Expiry is
// enforced lazily at resolution; stale rows stay in the store until the
// user's next login overwrites them.
type SessionManager struct {
	store  SessionStore
	maxAge time.Duration
	logger *slog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewSessionManager creates a SessionManager with a no-op logger.
func NewSessionManager(store SessionStore, maxAge time.Duration) (*SessionManager, error) {
	return NewSessionManagerWithLogger(store, maxAge, slog.New(slog.DiscardHandler))
}

// NewSessionManagerWithLogger creates a SessionManager with the provided logger.
func NewSessionManagerWithLogger(store SessionStore, maxAge time.Duration, logger *slog.Logger) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Errorf("session store is required")
	}
	if maxAge < 0 {
		return nil, oops.Code("SESSION_INVALID_MAX_AGE").
			With("max_age", maxAge).
			Errorf("session max age cannot be negative")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &SessionManager{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}, nil
}

// CreateSession issues a fresh token for the user, replacing any previous one.
// Returns the plaintext token. Fails with ErrNotFound for an unknown user.
func (m *SessionManager) CreateSession(ctx context.Context, userID ulid.ULID) (string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	if err := m.store.Put(ctx, userID, tokenHash, m.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("SESSION_USER_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	m.logger.Debug("session created", "user_id", userID.String())
	return token, nil
}

// ResolveSession returns the user id holding the token, or ErrNotFound when
// the token is absent or, under a bounded policy, expired.
func (m *SessionManager) ResolveSession(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("SESSION_TOKEN_EMPTY").
			Wrapf(ErrNotFound, "session token cannot be empty")
	}

	userID, createdAt, err := m.store.Get(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, oops.Code("SESSION_INVALID").
				Wrapf(ErrNotFound, "invalid session token")
		}
		return ulid.ULID{}, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if m.maxAge > 0 && !m.now().Before(createdAt.Add(m.maxAge)) {
		// Lazy rejection only; the stale row is overwritten on next login.
		return ulid.ULID{}, oops.Code("SESSION_EXPIRED").
			With("created_at", createdAt).
			Wrapf(ErrNotFound, "session has expired")
	}

	return userID, nil
}

// DestroySession removes the session if present and reports whether it was.
// Destroying an absent token is not an error.
func (m *SessionManager) DestroySession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	existed, err := m.store.Delete(ctx, HashSessionToken(token))
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete session token").
			Wrap(err)
	}
	if existed {
		m.logger.Debug("session destroyed")
	}
	return existed, nil
}
