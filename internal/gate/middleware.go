// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

// contextKey is a private type so only this package can set the identity.
type contextKey struct{}

// CurrentUser returns the authenticated user placed in the context by
// Middleware, or nil for exempt paths.
func CurrentUser(ctx context.Context) *auth.User {
	user, _ := ctx.Value(contextKey{}).(*auth.User)
	return user
}

// WithUser returns a context carrying the user. Exported for handler tests.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// Middleware enforces the strategy on every request. Exempt paths pass
// through without an identity; protected paths either get the resolved user
// in their context or a 401. Infrastructure failures (not credential
// failures) map to 503 so a flaky store never looks like a bad password.
func Middleware(strategy Strategy, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strategy.RequiresAuth(r.URL.Path) {
				AuthDecisions.WithLabelValues(strategy.Name(), OutcomeExempt).Inc()
				next.ServeHTTP(w, r)
				return
			}

			user, err := strategy.ExtractIdentity(r)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					AuthDecisions.WithLabelValues(strategy.Name(), OutcomeDenied).Inc()
					logger.Debug("request denied",
						"strategy", strategy.Name(),
						"path", r.URL.Path,
					)
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				AuthDecisions.WithLabelValues(strategy.Name(), OutcomeError).Inc()
				errutil.LogError(logger, "identity extraction failed", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}

			AuthDecisions.WithLabelValues(strategy.Name(), OutcomeGranted).Inc()
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
