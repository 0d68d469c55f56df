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

	"github.com/samber/oops"
)

// ResetTokenBytes is the entropy of a reset token (32 bytes = 64 hex chars).
const ResetTokenBytes = 32

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token goes to
// the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashResetToken(token)

	return token, hash, nil
}

// HashResetToken computes the SHA-256 hash of a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetService handles the one-time reset token flow.
//
// Tokens are stored hashed on the user record, one live token per user;
// issuing a new token overwrites the previous one, and redemption consumes
// the token atomically with the password update.
type PasswordResetService struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService with a no-op logger.
// Returns an error if any required dependency is nil.
func NewPasswordResetService(users UserRepository, hasher PasswordHasher) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, hasher, slog.New(slog.DiscardHandler))
}

// NewPasswordResetServiceWithLogger creates a PasswordResetService with the
// provided logger.
func NewPasswordResetServiceWithLogger(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &PasswordResetService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}, nil
}

// IssueResetToken generates a reset token for the user with the given email,
// overwriting any previously issued token. Returns the plaintext token for
// delivery (sending it is not this service's job). Fails with ErrNotFound if
// no user has the email; the caller decides how to surface that.
func (s *PasswordResetService) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindBy(ctx, map[string]any{FieldEmail: email})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_USER_NOT_FOUND").
				Wrapf(ErrNotFound, "no user with that email")
		}
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := s.users.Update(ctx, user.ID, map[string]any{FieldResetToken: hash}); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("reset token issued", "user_id", user.ID.String())
	return token, nil
}

// RedeemResetToken sets a new password for the user holding the token.
// The token is consumed in the same update that changes the password, so a
// second redemption with the same token fails with ErrInvalidToken.
func (s *PasswordResetService) RedeemResetToken(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return oops.Code("RESET_TOKEN_EMPTY").
			Wrapf(ErrInvalidToken, "reset token cannot be empty")
	}
	if newPassword == "" {
		return oops.Code("RESET_PASSWORD_EMPTY").
			Wrapf(ErrInvalidInput, "new password cannot be empty")
	}

	user, err := s.users.FindBy(ctx, map[string]any{FieldResetToken: HashResetToken(token)})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").
				Wrapf(ErrInvalidToken, "reset token not found")
		}
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	// Single update: the password change and token consumption land together.
	err = s.users.Update(ctx, user.ID, map[string]any{
		FieldPasswordHash: passwordHash,
		FieldResetToken:   nil,
	})
	if err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("password reset", "user_id", user.ID.String())
	return nil
}
