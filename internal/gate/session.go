// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package gate

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// DefaultSessionCookieName is used when no cookie name is configured.
const DefaultSessionCookieName = "_my_session_id"

// SessionStrategy authenticates requests from a session cookie.
type SessionStrategy struct {
	resolver   SessionResolver
	exempt     *PathMatcher
	cookieName string
}

// NewSessionStrategy creates a SessionStrategy. An empty cookieName falls
// back to DefaultSessionCookieName. Returns an error if the resolver is nil.
func NewSessionStrategy(resolver SessionResolver, exempt *PathMatcher, cookieName string) (*SessionStrategy, error) {
	if resolver == nil {
		return nil, oops.Errorf("session resolver is required")
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return &SessionStrategy{
		resolver:   resolver,
		exempt:     exempt,
		cookieName: cookieName,
	}, nil
}

// Name identifies the strategy in logs and metrics.
func (s *SessionStrategy) Name() string { return "session" }

// CookieName returns the configured session cookie name.
func (s *SessionStrategy) CookieName() string { return s.cookieName }

// RequiresAuth reports whether the path needs authentication.
func (s *SessionStrategy) RequiresAuth(path string) bool {
	return s.exempt.RequiresAuth(path)
}

// ExtractIdentity resolves the session cookie to a user. An absent cookie or
// an unresolvable token yields auth.ErrUnauthenticated.
func (s *SessionStrategy) ExtractIdentity(r *http.Request) (*auth.User, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, oops.Code("GATE_NO_SESSION_COOKIE").
			With("cookie", s.cookieName).
			Wrapf(auth.ErrUnauthenticated, "missing session cookie")
	}

	user, err := s.resolver.UserFromSession(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, oops.Code("GATE_SESSION_INVALID").
				Wrapf(auth.ErrUnauthenticated, "session could not be resolved")
		}
		return nil, oops.Code("GATE_SESSION_RESOLVE_FAILED").
			With("operation", "resolve session").
			Wrap(err)
	}
	return user, nil
}

// Compile-time interface check.
var _ Strategy = (*SessionStrategy)(nil)
