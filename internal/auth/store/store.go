package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this and expose sub-repositories to keep concerns tidy.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Close releases the underlying connection pool.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Users is the user directory. Lookups return ErrNotFound when no row matches.
type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login. Matching is exact.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUserProfile changes name, email and profile and bumps updated_at.
	UpdateUserProfile(ctx context.Context, u domain.User) error

	// UpdatePasswordHash replaces the stored hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetUserActive flips the active flag and bumps updated_at.
	SetUserActive(ctx context.Context, userID string, active bool) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

// RefreshTokens persists refresh token records keyed by token fingerprint.
type RefreshTokens interface {
	// CreateRefreshToken inserts a record. Returns ErrAlreadyExists if the
	// fingerprint is already present.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the record for a fingerprint, expired or not.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// DeleteRefreshToken removes a record and reports whether one existed.
	DeleteRefreshToken(ctx context.Context, hash string) (bool, error)

	// DeleteExpiredRefreshTokens removes records with expires_at <= now.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
