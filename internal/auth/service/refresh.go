package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
)

// maxCreateAttempts bounds regeneration when a fresh token collides.
const maxCreateAttempts = 3

var errTokenCollision = errors.New("refresh token collided on every attempt")

// RefreshTokenStore issues and resolves opaque refresh tokens. Records are
// keyed by the token's fingerprint; the raw token only leaves through Create.
//
// Tokens are not rotated on use and a user may hold any number at once.
type RefreshTokenStore struct {
	Repo store.RefreshTokens
	TTL  time.Duration

	// Now and Generate are swappable for tests.
	Now      func() time.Time
	Generate func() (string, error)
}

// NewRefreshTokenStore returns a store with the given TTL, defaulting to
// jwtx.DefaultRefreshTokenTTL.
func NewRefreshTokenStore(repo store.RefreshTokens, ttl time.Duration) *RefreshTokenStore {
	if ttl <= 0 {
		ttl = jwtx.DefaultRefreshTokenTTL
	}
	return &RefreshTokenStore{
		Repo:     repo,
		TTL:      ttl,
		Now:      time.Now,
		Generate: cryptox.GenerateRefreshToken,
	}
}

// Create persists a new token for userID and returns its raw value.
func (s *RefreshTokenStore) Create(ctx context.Context, userID string) (string, error) {
	now := s.Now().UTC()

	for range maxCreateAttempts {
		token, err := s.Generate()
		if err != nil {
			return "", fmt.Errorf("generate refresh token: %w", err)
		}

		err = s.Repo.CreateRefreshToken(ctx, domain.RefreshToken{
			TokenHash: cryptox.FingerprintToken(token),
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.TTL),
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("persist refresh token: %w", err)
		}
		return token, nil
	}

	return "", errTokenCollision
}

// Find returns the record for token, if any. Expired records are still returned.
func (s *RefreshTokenStore) Find(ctx context.Context, token string) (domain.RefreshToken, bool, error) {
	rec, err := s.Repo.GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.RefreshToken{}, false, nil
	}
	if err != nil {
		return domain.RefreshToken{}, false, fmt.Errorf("lookup refresh token: %w", err)
	}
	return rec, true, nil
}

// IsValid reports whether rec has not yet expired.
func (s *RefreshTokenStore) IsValid(rec domain.RefreshToken) bool {
	return rec.IsValid(s.Now())
}

// Delete removes token and reports whether it existed. Deleting an unknown
// token is not an error.
func (s *RefreshTokenStore) Delete(ctx context.Context, token string) (bool, error) {
	deleted, err := s.Repo.DeleteRefreshToken(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return deleted, nil
}
