package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingTokens wraps a refresh token repo and counts successful inserts.
type countingTokens struct {
	store.RefreshTokens

	mu      sync.Mutex
	created int
}

func (c *countingTokens) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	err := c.RefreshTokens.CreateRefreshToken(ctx, t)
	if err == nil {
		c.mu.Lock()
		c.created++
		c.mu.Unlock()
	}
	return err
}

func (c *countingTokens) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

type harness struct {
	svc    *service.SessionService
	store  *sqlite.Store
	tokens *countingTokens
	codec  *jwtx.HS256Codec
	hasher *cryptox.PasswordHasher
	clock  *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	clock := newClock()
	codec, err := jwtx.NewHS256Codec(jwtx.HS256Config{
		Secret: []byte("service-test-secret"),
		Issuer: "sessionauth",
		Now:    clock.Now,
	})
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens := &countingTokens{RefreshTokens: s.RefreshTokens()}
	refresh := service.NewRefreshTokenStore(tokens, 0)
	refresh.Now = clock.Now

	return &harness{
		svc: &service.SessionService{
			Users:         s.Users(),
			RefreshTokens: refresh,
			Tokens:        codec,
			Passwords:     hasher,
		},
		store:  s,
		tokens: tokens,
		codec:  codec,
		hasher: hasher,
		clock:  clock,
	}
}

func (h *harness) addUser(t *testing.T, id, email, password string, active bool) domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           id,
		Email:        email,
		Name:         "User " + id,
		PasswordHash: hash,
		Profile:      domain.ProfileInvestor,
		Active:       active,
	}
	require.NoError(t, h.store.Users().CreateUser(context.Background(), u))
	return u
}

// brokenUsers fails every call with a driver-looking error.
type brokenUsers struct{ store.Users }

var errDriver = errors.New("sqlite: database is locked (5) at /var/lib/auth.db")

func (brokenUsers) GetUserByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, errDriver
}

func (brokenUsers) GetUserByID(context.Context, string) (domain.User, error) {
	return domain.User{}, errDriver
}
