// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/gate"
	"github.com/authgate/authgate/pkg/errutil"
)

// handleWelcome serves the unauthenticated landing route.
func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, "welcome", http.StatusOK, map[string]string{
		"message": "Bienvenue",
	})
}

// handleRegister creates a new user from email/password form fields.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := s.svc.Register(r.Context(), email, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateUser):
			s.writeJSON(w, r, "register", http.StatusBadRequest, map[string]string{
				"message": "email already registered",
			})
		case errors.Is(err, auth.ErrInvalidInput):
			s.writeJSON(w, r, "register", http.StatusBadRequest, map[string]string{
				"message": "invalid email or password",
			})
		default:
			s.serverError(w, r, "register", err)
		}
		return
	}

	s.writeJSON(w, r, "register", http.StatusOK, map[string]string{
		"email":   user.Email,
		"message": "user created",
	})
}

// handleLogin verifies credentials and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	token, err := s.svc.Login(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			s.recordRequest("login", http.StatusUnauthorized)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.serverError(w, r, "login", err)
		return
	}

	http.SetCookie(w, s.sessionCookie(token))
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	s.writeJSON(w, r, "login", http.StatusOK, map[string]string{
		"email":   email,
		"message": "logged in",
	})
}

// handleLogout destroys the session named by the cookie and redirects home.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		s.recordRequest("logout", http.StatusForbidden)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	destroyed, err := s.svc.Logout(r.Context(), cookie.Value)
	if err != nil {
		s.serverError(w, r, "logout", err)
		return
	}
	if !destroyed {
		s.recordRequest("logout", http.StatusForbidden)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	http.SetCookie(w, s.expiredCookie())
	if s.metrics != nil {
		s.metrics.SessionsEnded.Inc()
	}
	s.recordRequest("logout", http.StatusFound)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleProfile returns the authenticated user's email. The gate middleware
// normally resolves the user; the cookie fallback covers deployments that
// list /profile as exempt.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := gate.CurrentUser(r.Context())
	if user == nil {
		cookie, err := r.Cookie(s.cfg.CookieName)
		if err == nil && cookie.Value != "" {
			user, _ = s.svc.UserFromSession(r.Context(), cookie.Value)
		}
	}
	if user == nil {
		s.recordRequest("profile", http.StatusForbidden)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.writeJSON(w, r, "profile", http.StatusOK, map[string]string{
		"email": user.Email,
	})
}

// handleIssueReset mints a password reset token for a registered email.
func (s *Server) handleIssueReset(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")

	token, err := s.resets.IssueResetToken(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			s.recordRequest("reset_issue", http.StatusForbidden)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		s.serverError(w, r, "reset_issue", err)
		return
	}

	if s.metrics != nil {
		s.metrics.ResetsIssued.Inc()
	}
	s.writeJSON(w, r, "reset_issue", http.StatusOK, map[string]string{
		"email":       email,
		"reset_token": token,
	})
}

// handleRedeemReset consumes a reset token and updates the password.
func (s *Server) handleRedeemReset(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")

	if err := s.resets.RedeemResetToken(r.Context(), token, newPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			s.recordRequest("reset_redeem", http.StatusForbidden)
			http.Error(w, "Forbidden", http.StatusForbidden)
		case errors.Is(err, auth.ErrInvalidInput):
			s.writeJSON(w, r, "reset_redeem", http.StatusBadRequest, map[string]string{
				"message": "invalid password",
			})
		default:
			s.serverError(w, r, "reset_redeem", err)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.ResetsRedeemed.Inc()
	}
	s.writeJSON(w, r, "reset_redeem", http.StatusOK, map[string]string{
		"email":   email,
		"message": "Password updated",
	})
}

// sessionCookie builds the cookie carrying the session token.
func (s *Server) sessionCookie(token string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cfg.SessionMaxAge > 0 {
		cookie.MaxAge = int(s.cfg.SessionMaxAge.Seconds())
	}
	return cookie
}

// expiredCookie clears the session cookie on the client.
func (s *Server) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}

// writeJSON writes a JSON response and records the request metric.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, route string, status int, v any) {
	s.recordRequest(route, status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to write response",
			"route", route,
			"error", err,
		)
	}
}

// serverError logs the failure and responds 500 without leaking details.
func (s *Server) serverError(w http.ResponseWriter, _ *http.Request, route string, err error) {
	s.recordRequest(route, http.StatusInternalServerError)
	errutil.LogError(s.logger, "request failed", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (s *Server) recordRequest(route string, status int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
