// Package storetest holds contract tests shared by every store driver.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/stretchr/testify/require"
)

// NewUser returns an active investor fixture.
func NewUser(id, email string) domain.User {
	return domain.User{
		ID:           id,
		Email:        email,
		Name:         "Test " + id,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuuJ1Hc7wV4e4ZiN0Z5rZ0Uz8t6l5bQ1W",
		Profile:      domain.ProfileInvestor,
		Active:       true,
	}
}

// RunUsers exercises a store.Users implementation against an empty directory.
func RunUsers(t *testing.T, users store.Users) {
	t.Helper()
	ctx := context.Background()

	empty, err := users.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, users.CreateUser(ctx, NewUser("u1", "a@x.com")))

	empty, err = users.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)

	t.Run("get by email", func(t *testing.T) {
		u, err := users.GetUserByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, "u1", u.ID)
		require.Equal(t, "Test u1", u.Name)
		require.Equal(t, domain.ProfileInvestor, u.Profile)
		require.True(t, u.Active)
		require.False(t, u.CreatedAt.IsZero())
	})

	t.Run("email match is exact", func(t *testing.T) {
		_, err := users.GetUserByEmail(ctx, "A@X.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("get by id missing", func(t *testing.T) {
		_, err := users.GetUserByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := users.CreateUser(ctx, NewUser("u2", "a@x.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("set active", func(t *testing.T) {
		require.NoError(t, users.SetUserActive(ctx, "u1", false))
		u, err := users.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.False(t, u.Active)

		require.NoError(t, users.SetUserActive(ctx, "u1", true))
		require.ErrorIs(t, users.SetUserActive(ctx, "nope", true), store.ErrNotFound)
	})

	t.Run("update password hash", func(t *testing.T) {
		require.NoError(t, users.UpdatePasswordHash(ctx, "u1", "$2a$05$rehashed"))
		u, err := users.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "$2a$05$rehashed", u.PasswordHash)

		require.ErrorIs(t, users.UpdatePasswordHash(ctx, "nope", "x"), store.ErrNotFound)
	})

	t.Run("update profile", func(t *testing.T) {
		require.NoError(t, users.UpdateUserProfile(ctx, domain.User{
			ID: "u1", Name: "Renamed", Email: "b@x.com", Profile: domain.ProfilePartner,
		}))
		u, err := users.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Renamed", u.Name)
		require.Equal(t, "b@x.com", u.Email)
		require.Equal(t, domain.ProfilePartner, u.Profile)

		err = users.UpdateUserProfile(ctx, domain.User{ID: "nope", Email: "c@x.com"})
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

// RunRefreshTokens exercises a store.RefreshTokens implementation. Records
// reference userID, which must already exist for drivers that enforce it.
func RunRefreshTokens(t *testing.T, tokens store.RefreshTokens, userID string) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := domain.RefreshToken{
		TokenHash: "hash-1",
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, tokens.CreateRefreshToken(ctx, rec))

	t.Run("collision", func(t *testing.T) {
		err := tokens.CreateRefreshToken(ctx, rec)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("find", func(t *testing.T) {
		got, err := tokens.GetRefreshTokenByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.Equal(t, rec.TokenHash, got.TokenHash)
		require.Equal(t, rec.UserID, got.UserID)
		require.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", rec.CreatedAt, got.CreatedAt)
		require.True(t, rec.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", rec.ExpiresAt, got.ExpiresAt)
	})

	t.Run("find missing", func(t *testing.T) {
		_, err := tokens.GetRefreshTokenByHash(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("multiple per user", func(t *testing.T) {
		for _, h := range []string{"multi-1", "multi-2", "multi-3"} {
			require.NoError(t, tokens.CreateRefreshToken(ctx, domain.RefreshToken{
				TokenHash: h, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
			}))
		}
		for _, h := range []string{"hash-1", "multi-1", "multi-2", "multi-3"} {
			_, err := tokens.GetRefreshTokenByHash(ctx, h)
			require.NoError(t, err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		deleted, err := tokens.DeleteRefreshToken(ctx, "hash-1")
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = tokens.DeleteRefreshToken(ctx, "hash-1")
		require.NoError(t, err)
		require.False(t, deleted)

		deleted, err = tokens.DeleteRefreshToken(ctx, "never-existed")
		require.NoError(t, err)
		require.False(t, deleted)

		_, err = tokens.GetRefreshTokenByHash(ctx, "hash-1")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = tokens.GetRefreshTokenByHash(ctx, "multi-1")
		require.NoError(t, err, "deleting one token leaves the user's others")
	})
}

// RunDeleteExpired checks the housekeeping sweep removes only expired rows.
func RunDeleteExpired(t *testing.T, tokens store.RefreshTokens, userID string) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, tokens.CreateRefreshToken(ctx, domain.RefreshToken{
		TokenHash: "sweep-expired", UserID: userID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, tokens.CreateRefreshToken(ctx, domain.RefreshToken{
		TokenHash: "sweep-live", UserID: userID, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	_, err := tokens.DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)

	_, err = tokens.GetRefreshTokenByHash(ctx, "sweep-expired")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = tokens.GetRefreshTokenByHash(ctx, "sweep-live")
	require.NoError(t, err)
}
