// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements the auth storage interfaces on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// pool is the subset of pgxpool.Pool the repositories use. pgxmock satisfies
// it, so repository tests run without a database.
type pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = "id, email, password_hash, session_token, session_created_at, reset_token, created_at, updated_at"

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user. A unique-violation on the email column maps to
// auth.ErrDuplicateUser.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, session_token, session_created_at, reset_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.SessionToken,
		user.SessionCreatedAt,
		user.ResetToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE").
				With("email", user.Email).
				Wrap(auth.ErrDuplicateUser)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// FindBy returns the first user matching all predicate fields exactly.
func (r *UserRepository) FindBy(ctx context.Context, predicate map[string]any) (*auth.User, error) {
	if err := auth.ValidateFindFields(predicate); err != nil {
		return nil, err
	}

	// Sorted keys keep the generated SQL deterministic.
	fields := make([]string, 0, len(predicate))
	for field := range predicate {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, field := range fields {
		value, err := predicateArg(field, predicate[field])
		if err != nil {
			return nil, err
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", field, i+1))
		args = append(args, value)
	}

	query := fmt.Sprintf("SELECT %s FROM users WHERE %s LIMIT 1", userColumns, strings.Join(conds, " AND "))
	row := r.pool.QueryRow(ctx, query, args...)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("fields", fields).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			With("fields", fields).
			Wrap(err)
	}
	return user, nil
}

// Update applies a partial update in a single statement, so two racing
// writers leave exactly one of the two states.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, fields map[string]any) error {
	if err := auth.ValidateUpdateFields(fields); err != nil {
		return err
	}

	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := []any{id.String()}
	for _, field := range names {
		args = append(args, fields[field])
		sets = append(sets, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	args = append(args, time.Now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1", strings.Join(sets, ", "))
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// predicateArg converts a predicate value to its SQL argument.
func predicateArg(field string, raw any) (any, error) {
	switch field {
	case auth.FieldID:
		id, ok := raw.(ulid.ULID)
		if !ok {
			return nil, oops.Code("USER_BAD_PREDICATE_VALUE").
				With("field", field).
				Wrapf(auth.ErrInvalidInput, "id predicate must be a ULID")
		}
		return id.String(), nil
	default:
		v, ok := raw.(string)
		if !ok {
			return nil, oops.Code("USER_BAD_PREDICATE_VALUE").
				With("field", field).
				Wrapf(auth.ErrInvalidInput, "%s predicate must be a string", field)
		}
		return v, nil
	}
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr            string
		email            string
		passwordHash     string
		sessionToken     *string
		sessionCreatedAt *time.Time
		resetToken       *string
		createdAt        time.Time
		updatedAt        time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&passwordHash,
		&sessionToken,
		&sessionCreatedAt,
		&resetToken,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:               id,
		Email:            email,
		PasswordHash:     passwordHash,
		SessionToken:     sessionToken,
		SessionCreatedAt: sessionCreatedAt,
		ResetToken:       resetToken,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
