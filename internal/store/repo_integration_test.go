//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/store"
)

// setupDatabase starts a PostgreSQL container and applies migrations.
func setupDatabase() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("authgate_test"),
		tcpostgres.WithUsername("authgate"),
		tcpostgres.WithPassword("authgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	_ = migrator.Close()

	pool, err := store.NewPool(ctx, connStr, nil)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup, nil
}

var _ = Describe("PostgresRepositories", func() {
	var pool *pgxpool.Pool
	var cleanup func()

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupDatabase()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("UserRepository", func() {
		It("creates and finds users", func() {
			ctx := context.Background()
			repo := postgres.NewUserRepository(pool)

			user, err := auth.NewUser("bob@example.com", "hashed")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, user)).To(Succeed())

			found, err := repo.FindBy(ctx, map[string]any{"email": "bob@example.com"})
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(user.ID))
			Expect(found.PasswordHash).To(Equal("hashed"))
		})

		It("rejects duplicate emails", func() {
			ctx := context.Background()
			repo := postgres.NewUserRepository(pool)

			first, err := auth.NewUser("dup@example.com", "h1")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, first)).To(Succeed())

			second, err := auth.NewUser("dup@example.com", "h2")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, second)).To(MatchError(auth.ErrDuplicateUser))
		})

		It("updates user fields", func() {
			ctx := context.Background()
			repo := postgres.NewUserRepository(pool)

			user, err := auth.NewUser("upd@example.com", "old")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, user)).To(Succeed())

			err = repo.Update(ctx, user.ID, map[string]any{"password_hash": "new"})
			Expect(err).NotTo(HaveOccurred())

			found, err := repo.FindBy(ctx, map[string]any{"id": user.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(found.PasswordHash).To(Equal("new"))
		})
	})

	Describe("SessionStore", func() {
		It("round-trips a session", func() {
			ctx := context.Background()
			repo := postgres.NewUserRepository(pool)
			sessions := postgres.NewSessionStore(pool)

			user, err := auth.NewUser("sess@example.com", "h")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, user)).To(Succeed())

			createdAt := time.Now().UTC().Truncate(time.Millisecond)
			Expect(sessions.Put(ctx, user.ID, "tokenhash", createdAt)).To(Succeed())

			gotID, gotAt, err := sessions.Get(ctx, "tokenhash")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotID).To(Equal(user.ID))
			Expect(gotAt.UTC()).To(BeTemporally("~", createdAt, time.Second))

			deleted, err := sessions.Delete(ctx, "tokenhash")
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue())

			_, _, err = sessions.Get(ctx, "tokenhash")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})
})
