// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package httpapi exposes the authentication service over HTTP.
//
// The route surface is small: user registration, session login/logout, a
// profile endpoint, and the password reset flow. Every request first passes
// through the gate middleware, which enforces the configured authentication
// strategy on non-exempt paths.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/gate"
	"github.com/authgate/authgate/internal/observability"
)

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address in "host:port" form.
	Addr string
	// CookieName is the session cookie name set on login.
	CookieName string
	// SessionMaxAge bounds the session cookie lifetime. Zero means a
	// browser-session cookie with no Max-Age attribute.
	SessionMaxAge time.Duration
}

// Server serves the authentication HTTP API.
type Server struct {
	cfg        Config
	svc        *auth.Service
	resets     *auth.PasswordResetService
	strategy   gate.Strategy
	metrics    *observability.Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server. metrics and logger may be nil.
func NewServer(cfg Config, svc *auth.Service, resets *auth.PasswordResetService, strategy gate.Strategy, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if resets == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	if strategy == nil {
		return nil, oops.Errorf("auth strategy is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = gate.DefaultSessionCookieName
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:      cfg,
		svc:      svc,
		resets:   resets,
		strategy: strategy,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Handler returns the full request handler, gate middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleWelcome)
	mux.HandleFunc("POST /users", s.handleRegister)
	mux.HandleFunc("POST /sessions", s.handleLogin)
	mux.HandleFunc("DELETE /sessions", s.handleLogout)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("POST /reset_password", s.handleIssueReset)
	mux.HandleFunc("PUT /reset_password", s.handleRedeemReset)

	return gate.Middleware(s.strategy, s.logger)(mux)
}

// Start begins serving. It returns an error channel that receives any error
// from the HTTP server after startup; the channel closes on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_http_server").Wrap(err)
		}
	}

	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
