package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/sessionauth/internal/auth/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
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

// countingTokens counts refresh token inserts that reached the store.
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

var generousLimits = authhttp.RateLimits{
	Credential: httpx.RateLimitConfig{Requests: 1000, Window: time.Minute, Burst: 1000},
	Session:    httpx.RateLimitConfig{Requests: 1000, Window: time.Minute, Burst: 1000},
}

type server struct {
	handler  http.Handler
	sessions *service.SessionService
	store    *sqlite.Store
	tokens   *countingTokens
	codec    *jwtx.HS256Codec
	hasher   *cryptox.PasswordHasher
	clock    *fakeClock
}

func newServer(t *testing.T, limits authhttp.RateLimits) *server {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	codec, err := jwtx.NewHS256Codec(jwtx.HS256Config{
		Secret: []byte("http-test-secret"),
		Issuer: "sessionauth",
		Now:    clock.Now,
	})
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens := &countingTokens{RefreshTokens: st.RefreshTokens()}
	refresh := service.NewRefreshTokenStore(tokens, 0)
	refresh.Now = clock.Now

	sessions := &service.SessionService{
		Users:         st.Users(),
		RefreshTokens: refresh,
		Tokens:        codec,
		Passwords:     hasher,
	}

	router := authhttp.NewRouter(sessions, codec, limits, slogx.Discard())
	router.ApplyRoutes()

	return &server{
		handler:  router,
		sessions: sessions,
		store:    st,
		tokens:   tokens,
		codec:    codec,
		hasher:   hasher,
		clock:    clock,
	}
}

func (s *server) addUser(t *testing.T, id, email, password string, active bool) domain.User {
	t.Helper()
	hash, err := s.hasher.Hash(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           id,
		Email:        email,
		Name:         "Ada",
		PasswordHash: hash,
		Profile:      domain.ProfileInvestor,
		Active:       active,
	}
	require.NoError(t, s.store.Users().CreateUser(context.Background(), u))
	return u
}

func (s *server) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, code int, kind string) httpx.ErrorBody {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	body := decode[httpx.ErrorBody](t, rec)
	require.Equal(t, kind, body.Error)
	require.NotEmpty(t, body.Message)
	return body
}

// brokenUsers fails every lookup with a driver-looking error.
type brokenUsers struct{ store.Users }

var errDriver = errors.New("sqlite: disk I/O error at /var/lib/auth.db")

func (brokenUsers) GetUserByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, errDriver
}

func (brokenUsers) GetUserByID(context.Context, string) (domain.User, error) {
	return domain.User{}, errDriver
}
