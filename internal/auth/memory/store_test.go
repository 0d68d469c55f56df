// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/memory"
	"github.com/authgate/authgate/pkg/errutil"
)

func mustNewUser(t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "hash")
	require.NoError(t, err)
	return user
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a user", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")

		require.NoError(t, store.Create(ctx, user))

		got, err := store.FindBy(ctx, map[string]any{auth.FieldID: user.ID})
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.Create(ctx, mustNewUser(t, "alice@example.com")))

		err := store.Create(ctx, mustNewUser(t, "alice@example.com"))
		require.ErrorIs(t, err, auth.ErrDuplicateUser)
		errutil.AssertErrorCode(t, err, "USER_DUPLICATE")
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		clone := *user
		clone.Email = "other@example.com"
		err := store.Create(ctx, &clone)
		require.ErrorIs(t, err, auth.ErrDuplicateUser)
	})

	t.Run("stores a copy", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		user.PasswordHash = "mutated"

		got, err := store.FindBy(ctx, map[string]any{auth.FieldID: user.ID})
		require.NoError(t, err)
		assert.Equal(t, "hash", got.PasswordHash, "later mutation must not leak into the store")
	})
}

func TestStore_FindBy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	alice := mustNewUser(t, "alice@example.com")
	require.NoError(t, store.Create(ctx, alice))
	bob := mustNewUser(t, "bob@example.com")
	require.NoError(t, store.Create(ctx, bob))

	resetHash := auth.HashResetToken("some-reset-token")
	require.NoError(t, store.Update(ctx, bob.ID, map[string]any{auth.FieldResetToken: resetHash}))
	sessionHash := auth.HashSessionToken("some-session-token")
	require.NoError(t, store.Put(ctx, alice.ID, sessionHash, time.Now()))

	t.Run("by id", func(t *testing.T) {
		got, err := store.FindBy(ctx, map[string]any{auth.FieldID: alice.ID})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
	})

	t.Run("by email", func(t *testing.T) {
		got, err := store.FindBy(ctx, map[string]any{auth.FieldEmail: "bob@example.com"})
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
	})

	t.Run("by session token", func(t *testing.T) {
		got, err := store.FindBy(ctx, map[string]any{auth.FieldSessionToken: sessionHash})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("by reset token", func(t *testing.T) {
		got, err := store.FindBy(ctx, map[string]any{auth.FieldResetToken: resetHash})
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
	})

	t.Run("all predicate fields must match", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{
			auth.FieldEmail:      "bob@example.com",
			auth.FieldResetToken: "wrong-hash",
		})
		require.ErrorIs(t, err, auth.ErrNotFound)

		got, err := store.FindBy(ctx, map[string]any{
			auth.FieldEmail:      "bob@example.com",
			auth.FieldResetToken: resetHash,
		})
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
	})

	t.Run("no match is not found", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{auth.FieldEmail: "ghost@example.com"})
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{auth.FieldID: ulid.Make()})
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("empty predicate is invalid", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{})
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "USER_EMPTY_PREDICATE")
	})

	t.Run("unknown field is invalid", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{"password_hash": "x"})
		require.ErrorIs(t, err, auth.ErrInvalidField)
	})

	t.Run("wrong value type is invalid", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{auth.FieldEmail: 42})
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "USER_BAD_PREDICATE_VALUE")
	})

	t.Run("wrong id type is invalid", func(t *testing.T) {
		_, err := store.FindBy(ctx, map[string]any{auth.FieldID: "not-a-ulid"})
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "USER_BAD_PREDICATE_VALUE")
	})

	t.Run("returns a copy", func(t *testing.T) {
		got, err := store.FindBy(ctx, map[string]any{auth.FieldID: alice.ID})
		require.NoError(t, err)
		got.Email = "mutated@example.com"

		again, err := store.FindBy(ctx, map[string]any{auth.FieldID: alice.ID})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", again.Email)
	})
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a partial update", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		err := store.Update(ctx, user.ID, map[string]any{auth.FieldPasswordHash: "newhash"})
		require.NoError(t, err)

		got, err := store.FindBy(ctx, map[string]any{auth.FieldID: user.ID})
		require.NoError(t, err)
		assert.Equal(t, "newhash", got.PasswordHash)
		assert.Equal(t, "alice@example.com", got.Email, "untouched fields survive")
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("nil clears an optional field", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		require.NoError(t, store.Update(ctx, user.ID, map[string]any{auth.FieldResetToken: "hash"}))
		require.NoError(t, store.Update(ctx, user.ID, map[string]any{auth.FieldResetToken: nil}))

		got, err := store.FindBy(ctx, map[string]any{auth.FieldID: user.ID})
		require.NoError(t, err)
		assert.Nil(t, got.ResetToken)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		store := memory.NewStore()
		err := store.Update(ctx, ulid.Make(), map[string]any{auth.FieldPasswordHash: "x"})
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("empty update is invalid", func(t *testing.T) {
		store := memory.NewStore()
		err := store.Update(ctx, ulid.Make(), map[string]any{})
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "USER_EMPTY_UPDATE")
	})

	t.Run("wrong value type is invalid", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		err := store.Update(ctx, user.ID, map[string]any{auth.FieldPasswordHash: 42})
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "USER_BAD_UPDATE_VALUE")
	})
}

func TestStore_Sessions(t *testing.T) {
	ctx := context.Background()

	t.Run("put get delete roundtrip", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		createdAt := time.Now().Truncate(time.Second)
		require.NoError(t, store.Put(ctx, user.ID, "token-hash", createdAt))

		gotID, gotCreated, err := store.Get(ctx, "token-hash")
		require.NoError(t, err)
		assert.Equal(t, user.ID, gotID)
		assert.True(t, gotCreated.Equal(createdAt))

		existed, err := store.Delete(ctx, "token-hash")
		require.NoError(t, err)
		assert.True(t, existed)

		_, _, err = store.Get(ctx, "token-hash")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("put overwrites the previous token", func(t *testing.T) {
		store := memory.NewStore()
		user := mustNewUser(t, "alice@example.com")
		require.NoError(t, store.Create(ctx, user))

		require.NoError(t, store.Put(ctx, user.ID, "first-hash", time.Now()))
		require.NoError(t, store.Put(ctx, user.ID, "second-hash", time.Now()))

		_, _, err := store.Get(ctx, "first-hash")
		require.ErrorIs(t, err, auth.ErrNotFound)

		gotID, _, err := store.Get(ctx, "second-hash")
		require.NoError(t, err)
		assert.Equal(t, user.ID, gotID)
	})

	t.Run("put for unknown user fails", func(t *testing.T) {
		store := memory.NewStore()
		err := store.Put(ctx, ulid.Make(), "token-hash", time.Now())
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_USER_NOT_FOUND")
	})

	t.Run("delete of an absent token reports false", func(t *testing.T) {
		store := memory.NewStore()
		existed, err := store.Delete(ctx, "never-stored")
		require.NoError(t, err)
		assert.False(t, existed)
	})
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	user := mustNewUser(t, "alice@example.com")
	require.NoError(t, store.Create(ctx, user))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Update(ctx, user.ID, map[string]any{
				auth.FieldPasswordHash: fmt.Sprintf("hash-%d", n),
			})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.FindBy(ctx, map[string]any{auth.FieldEmail: "alice@example.com"})
		}()
	}
	wg.Wait()

	got, err := store.FindBy(ctx, map[string]any{auth.FieldID: user.ID})
	require.NoError(t, err)
	assert.Contains(t, got.PasswordHash, "hash-", "one of the writes must have won")
}
