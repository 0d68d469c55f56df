// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified when a user doesn't exist so response time
// stays consistent and emails cannot be enumerated by timing. It is a fake
// hash that never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service provides registration, credential verification, and login.
type Service struct {
	users    UserRepository
	sessions *SessionManager
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a Service with a no-op logger.
// Returns an error if any required dependency is nil.
func NewService(users UserRepository, sessions *SessionManager, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates a Service with the provided logger.
func NewServiceWithLogger(users UserRepository, sessions *SessionManager, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// Register creates a new user account.
// Returns ErrDuplicateUser if the email is already registered.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := NewUser(email, hash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, oops.Code("AUTH_DUPLICATE_USER").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.Info("user registered", "user_id", user.ID.String())
	return user, nil
}

// VerifyCredentials checks an email/password pair against the store.
// A lookup miss and a wrong password both collapse to ErrUnauthenticated;
// their oops codes stay distinguishable for logging and tests. Password
// verification runs even when the user does not exist so the two failure
// modes take comparable time.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*User, error) {
	user, lookupErr := s.users.FindBy(ctx, map[string]any{FieldEmail: email})

	targetHash := dummyPasswordHash
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_VERIFY_FAILED").
				With("operation", "find user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, oops.Code("AUTH_UNKNOWN_USER").
				Wrapf(ErrUnauthenticated, "invalid email or password")
		}
		return nil, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists {
		return nil, oops.Code("AUTH_UNKNOWN_USER").
			Wrapf(ErrUnauthenticated, "invalid email or password")
	}
	if !valid {
		return nil, oops.Code("AUTH_BAD_PASSWORD").
			Wrapf(ErrUnauthenticated, "invalid email or password")
	}

	return user, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return "", err
	}

	token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("user logged in", "user_id", user.ID.String())
	return token, nil
}

// Logout destroys the session for the token and reports whether one existed.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	return s.sessions.DestroySession(ctx, token)
}

// UserFromSession resolves a session token to its user record.
// Returns ErrNotFound when the token is absent, expired, or orphaned.
func (s *Service) UserFromSession(ctx context.Context, token string) (*User, error) {
	userID, err := s.sessions.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindBy(ctx, map[string]any{FieldID: userID})
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_ORPHANED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}
