package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/memory"
	authpg "github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/control"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory creates the user repository and session store for a
	// database URL. An empty URL selects the in-memory store.
	// Default: defaultStoreFactory
	StoreFactory func(ctx context.Context, url string, logger *slog.Logger) (auth.UserRepository, auth.SessionStore, func(), error)

	// ControlServerFactory creates a control socket server.
	// Default: control.NewServer
	ControlServerFactory func(component string, shutdownFunc control.ShutdownFunc) ControlServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// ControlServer interface wraps the methods used from control.Server.
type ControlServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
	Metrics() *observability.Metrics
}

// defaultStoreFactory wires the PostgreSQL repositories when a database URL is
// configured, and the in-memory store otherwise.
func defaultStoreFactory(ctx context.Context, url string, logger *slog.Logger) (auth.UserRepository, auth.SessionStore, func(), error) {
	if url == "" {
		logger.Info("no database configured, using in-memory store")
		mem := memory.NewStore()
		return mem, mem, func() {}, nil
	}

	pool, err := store.NewPool(ctx, url, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return authpg.NewUserRepository(pool), authpg.NewSessionStore(pool), pool.Close, nil
}
