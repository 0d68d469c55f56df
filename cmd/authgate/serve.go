// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/control"
	"github.com/authgate/authgate/internal/gate"
	"github.com/authgate/authgate/internal/httpapi"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/observability"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP server which handles user registration, login,
logout, profile lookup, and the password reset flow. Requests to
non-exempt paths are gated by the configured authentication strategy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	// Set up default factories
	if deps.StoreFactory == nil {
		deps.StoreFactory = defaultStoreFactory
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(component string, shutdownFunc control.ShutdownFunc) ControlServer {
			return control.NewServer(component, shutdownFunc)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger := logging.SetupLevel("authgate", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting authgate",
		"listen", cfg.Server.Listen,
		"strategy", cfg.Auth.Strategy,
	)

	users, sessionStore, closeStore, err := deps.StoreFactory(ctx, cfg.Database.URL, logger)
	if err != nil {
		return oops.Code("STORE_SETUP_FAILED").Wrap(err)
	}
	defer closeStore()

	hasher := auth.NewArgon2idHasher()

	maxAge := time.Duration(cfg.Session.MaxAgeSeconds) * time.Second
	sessions, err := auth.NewSessionManagerWithLogger(sessionStore, maxAge, logger)
	if err != nil {
		return err
	}

	svc, err := auth.NewServiceWithLogger(users, sessions, hasher, logger)
	if err != nil {
		return err
	}

	resets, err := auth.NewPasswordResetServiceWithLogger(users, hasher, logger)
	if err != nil {
		return err
	}

	exempt, err := gate.NewPathMatcher(cfg.Auth.ExemptPaths)
	if err != nil {
		return err
	}

	var strategy gate.Strategy
	switch cfg.Auth.Strategy {
	case "basic":
		strategy, err = gate.NewBasicStrategy(svc, exempt)
	default:
		strategy, err = gate.NewSessionStrategy(svc, exempt, cfg.Session.CookieName)
	}
	if err != nil {
		return err
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start control socket server (always enabled)
	controlServer := deps.ControlServerFactory("server", func() { cancel() })
	if err := controlServer.Start(); err != nil {
		return oops.Code("CONTROL_START_FAILED").Wrap(err)
	}

	logger.Info("control socket started", "path", control.SocketPath("server"))

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool { return true })
		gate.RegisterMetrics(obsServer.Registry())
		metrics = obsServer.Metrics()

		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			stopControl(controlServer, logger)
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(obsErr)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	api, err := httpapi.NewServer(httpapi.Config{
		Addr:          cfg.Server.Listen,
		CookieName:    cfg.Session.CookieName,
		SessionMaxAge: maxAge,
	}, svc, resets, strategy, metrics, logger)
	if err != nil {
		stopServers(nil, obsServer, controlServer, logger)
		return err
	}

	apiErrChan, err := api.Start()
	if err != nil {
		stopServers(nil, obsServer, controlServer, logger)
		return oops.Code("HTTP_START_FAILED").Wrap(err)
	}
	// Monitor HTTP server errors - cancel context on error
	go monitorServerErrors(ctx, cancel, apiErrChan, "http")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Authgate server started")
	logger.Info("authgate ready", "addr", api.Addr())

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopServers(api, obsServer, controlServer, logger)
	logger.Info("shutdown complete")
	return nil
}

// stopServers shuts down the HTTP, observability, and control servers in
// order, logging failures rather than aborting.
func stopServers(api *httpapi.Server, obsServer ObservabilityServer, controlServer ControlServer, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping http server", "error", err)
		}
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	if controlServer != nil {
		if err := controlServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping control socket server", "error", err)
		}
	}
}

func stopControl(controlServer ControlServer, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := controlServer.Stop(shutdownCtx); err != nil {
		logger.Warn("failed to stop control socket server during cleanup", "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
