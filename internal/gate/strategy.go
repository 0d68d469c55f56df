// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package gate

import (
	"context"
	"net/http"

	"github.com/authgate/authgate/internal/auth"
)

// Strategy decides whether a path needs authentication and extracts the
// request's identity. Implementations are interchangeable; the serving layer
// picks one at configuration time.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// RequiresAuth reports whether the path needs authentication.
	RequiresAuth(path string) bool

	// ExtractIdentity resolves the request's credentials to a user.
	// Any missing, malformed, or unverifiable credential yields an error
	// wrapping auth.ErrUnauthenticated; there is no partial success.
	ExtractIdentity(r *http.Request) (*auth.User, error)
}

// CredentialVerifier checks an email/password pair. Satisfied by
// auth.Service.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (*auth.User, error)
}

// SessionResolver resolves a session token to a user. Satisfied by
// auth.Service.
type SessionResolver interface {
	UserFromSession(ctx context.Context, token string) (*auth.User, error)
}
