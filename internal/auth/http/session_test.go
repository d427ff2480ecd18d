package http_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/sessionauth/internal/auth/http"

	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, s *server, email, password string) authsdk.LoginResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[authsdk.LoginResponse](t, rec)
}

func TestLogin(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)

	rec := s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.NotContains(t, strings.ToLower(rec.Body.String()), "password")

	resp := decode[authsdk.LoginResponse](t, rec)
	require.Equal(t, "Bearer", resp.TokenType)
	require.EqualValues(t, 3600, resp.ExpiresIn)
	require.Equal(t, authsdk.User{ID: "u1", Name: "Ada", Email: "a@x.com", Profile: "INVESTOR"}, resp.User)
	require.Len(t, resp.RefreshToken, 43)

	claims, err := s.codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, "INVESTOR", claims.Profile)
	require.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	require.Equal(t, 1, s.tokens.Created())
}

func TestLogin_RepeatedLoginsCreateIndependentTokens(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)

	first := login(t, s, "a@x.com", "secret1")
	second := login(t, s, "a@x.com", "secret1")
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, 2, s.tokens.Created())

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: tok})
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLogin_Rejected(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	s.addUser(t, "u2", "off@x.com", "secret1", false)

	tests := []struct {
		name string
		body any
		code int
		kind string
	}{
		{"wrong password", authsdk.LoginRequest{Email: "a@x.com", Password: "wrong"}, http.StatusUnauthorized, authsdk.KindInvalidCredentials},
		{"unknown email", authsdk.LoginRequest{Email: "nobody@x.com", Password: "secret1"}, http.StatusUnauthorized, authsdk.KindInvalidCredentials},
		{"inactive user", authsdk.LoginRequest{Email: "off@x.com", Password: "secret1"}, http.StatusUnauthorized, authsdk.KindInvalidCredentials},
		{"email case differs", authsdk.LoginRequest{Email: "A@x.com", Password: "secret1"}, http.StatusUnauthorized, authsdk.KindInvalidCredentials},
		{"malformed email", authsdk.LoginRequest{Email: "not-an-email", Password: "secret1"}, http.StatusBadRequest, authsdk.KindValidation},
		{"missing email", authsdk.LoginRequest{Password: "secret1"}, http.StatusBadRequest, authsdk.KindValidation},
		{"missing password", authsdk.LoginRequest{Email: "a@x.com"}, http.StatusBadRequest, authsdk.KindValidation},
		{"password too long", authsdk.LoginRequest{Email: "a@x.com", Password: strings.Repeat("p", 73)}, http.StatusBadRequest, authsdk.KindValidation},
		{"invalid json", `{"email":`, http.StatusBadRequest, authsdk.KindValidation},
		{"empty body", "", http.StatusBadRequest, authsdk.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, authsdk.PathLogin, tt.body)
			requireError(t, rec, tt.code, tt.kind)
		})
	}

	require.Zero(t, s.tokens.Created(), "no refresh token may be stored for a failed login")
}

func TestLogin_CredentialFailuresAreIndistinguishable(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	s.addUser(t, "u2", "off@x.com", "secret1", false)

	var bodies []string
	for _, req := range []authsdk.LoginRequest{
		{Email: "a@x.com", Password: "wrong"},
		{Email: "nobody@x.com", Password: "secret1"},
		{Email: "off@x.com", Password: "secret1"},
	} {
		bodies = append(bodies, s.do(t, http.MethodPost, authsdk.PathLogin, req).Body.String())
	}
	require.Equal(t, bodies[0], bodies[1])
	require.Equal(t, bodies[0], bodies[2])
}

func TestLogin_ValidationMessageNamesField(t *testing.T) {
	s := newServer(t, generousLimits)

	rec := s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Password: "x"})
	body := requireError(t, rec, http.StatusBadRequest, authsdk.KindValidation)
	require.Contains(t, body.Message, "email")
}

func TestRefresh(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")

	s.clock.Advance(10 * time.Minute)

	rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.NotContains(t, rec.Body.String(), "refreshToken")

	resp := decode[authsdk.RefreshResponse](t, rec)
	require.Equal(t, "Bearer", resp.TokenType)
	require.EqualValues(t, 3600, resp.ExpiresIn)
	require.Equal(t, "u1", resp.User.ID)
	require.NotEqual(t, sess.AccessToken, resp.AccessToken)

	claims, err := s.codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)

	// The refresh token is not rotated and keeps working.
	rec = s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, s.tokens.Created())
}

func TestRefresh_ReflectsCurrentUser(t *testing.T) {
	s := newServer(t, generousLimits)
	u := s.addUser(t, "u1", "a@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")

	u.Email = "new@x.com"
	u.Profile = "ADMIN"
	require.NoError(t, s.store.Users().UpdateUserProfile(t.Context(), u))

	rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[authsdk.RefreshResponse](t, rec)
	claims, err := s.codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "new@x.com", claims.Email)
	require.Equal(t, "ADMIN", claims.Profile)
	require.Equal(t, "ADMIN", resp.User.Profile)
}

func TestRefresh_Rejected(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		s := newServer(t, generousLimits)
		rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: "does-not-exist"})
		requireError(t, rec, http.StatusUnauthorized, authsdk.KindInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		s := newServer(t, generousLimits)
		rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{})
		requireError(t, rec, http.StatusBadRequest, authsdk.KindValidation)
	})

	t.Run("expired token", func(t *testing.T) {
		s := newServer(t, generousLimits)
		s.addUser(t, "u1", "a@x.com", "secret1", true)
		sess := login(t, s, "a@x.com", "secret1")

		s.clock.Advance(jwtx.DefaultRefreshTokenTTL)
		rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
		requireError(t, rec, http.StatusUnauthorized, authsdk.KindInvalidToken)
	})

	t.Run("inactive owner", func(t *testing.T) {
		s := newServer(t, generousLimits)
		s.addUser(t, "u1", "a@x.com", "secret1", true)
		sess := login(t, s, "a@x.com", "secret1")

		require.NoError(t, s.store.Users().SetUserActive(t.Context(), "u1", false))
		rec := s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
		requireError(t, rec, http.StatusUnauthorized, authsdk.KindInactiveUser)
	})
}

func TestLogout(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")

	rec := s.do(t, http.MethodPost, authsdk.PathLogout, authsdk.LogoutRequest{RefreshToken: sess.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "logged out", decode[authsdk.LogoutResponse](t, rec).Message)

	rec = s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
	requireError(t, rec, http.StatusUnauthorized, authsdk.KindInvalidToken)

	// Idempotent, and unknown tokens look the same.
	for _, tok := range []string{sess.RefreshToken, "never-issued"} {
		rec = s.do(t, http.MethodPost, authsdk.PathLogout, authsdk.LogoutRequest{RefreshToken: tok})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = s.do(t, http.MethodPost, authsdk.PathLogout, authsdk.LogoutRequest{})
	requireError(t, rec, http.StatusBadRequest, authsdk.KindValidation)
}

func TestLogout_LeavesOtherSessions(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	phone := login(t, s, "a@x.com", "secret1")
	laptop := login(t, s, "a@x.com", "secret1")

	rec := s.do(t, http.MethodPost, authsdk.PathLogout, authsdk.LogoutRequest{RefreshToken: phone.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: laptop.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")

	rec := s.do(t, http.MethodGet, authsdk.PathMe, nil, "Authorization", "Bearer "+sess.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, authsdk.User{ID: "u1", Name: "Ada", Email: "a@x.com", Profile: "INVESTOR"}, decode[authsdk.MeResponse](t, rec).User)
}

func TestMe_Rejected(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	s.addUser(t, "u2", "b@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")
	other := login(t, s, "b@x.com", "secret1")

	ghost, err := s.codec.Issue(jwtx.Identity{Subject: "ghost", Email: "g@x.com"})
	require.NoError(t, err)
	require.NoError(t, s.store.Users().SetUserActive(t.Context(), "u2", false))

	tests := []struct {
		name   string
		header string
		code   int
		kind   string
	}{
		{"no header", "", http.StatusUnauthorized, authsdk.KindMissingCredential},
		{"basic scheme", "Basic YTpi", http.StatusUnauthorized, authsdk.KindMissingCredential},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized, authsdk.KindInvalidToken},
		{"refresh token as bearer", "Bearer " + sess.RefreshToken, http.StatusUnauthorized, authsdk.KindInvalidToken},
		{"unknown subject", "Bearer " + ghost, http.StatusUnauthorized, authsdk.KindInvalidToken},
		{"inactive user", "Bearer " + other.AccessToken, http.StatusUnauthorized, authsdk.KindInactiveUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			rec := s.do(t, http.MethodGet, authsdk.PathMe, nil, headers...)
			requireError(t, rec, tt.code, tt.kind)
		})
	}
}

func TestMe_ExpiredAccessToken(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")

	s.clock.Advance(time.Hour + time.Second)
	rec := s.do(t, http.MethodGet, authsdk.PathMe, nil, "Authorization", "Bearer "+sess.AccessToken)
	requireError(t, rec, http.StatusUnauthorized, authsdk.KindInvalidToken)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	// A refreshed access token restores access.
	rec = s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decode[authsdk.RefreshResponse](t, rec)

	rec = s.do(t, http.MethodGet, authsdk.PathMe, nil, "Authorization", "Bearer "+fresh.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	s := newServer(t, generousLimits)
	s.addUser(t, "u1", "a@x.com", "secret1", true)
	sess := login(t, s, "a@x.com", "secret1")

	s.sessions.Users = brokenUsers{Users: s.sessions.Users}

	requests := map[string]func(t *testing.T) *httptest.ResponseRecorder{
		"login": func(t *testing.T) *httptest.ResponseRecorder {
			return s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: "a@x.com", Password: "secret1"})
		},
		"refresh": func(t *testing.T) *httptest.ResponseRecorder {
			return s.do(t, http.MethodPost, authsdk.PathRefresh, authsdk.RefreshRequest{RefreshToken: sess.RefreshToken})
		},
		"me": func(t *testing.T) *httptest.ResponseRecorder {
			return s.do(t, http.MethodGet, authsdk.PathMe, nil, "Authorization", "Bearer "+sess.AccessToken)
		},
	}

	for name, send := range requests {
		t.Run(name, func(t *testing.T) {
			rec := send(t)
			body := requireError(t, rec, http.StatusInternalServerError, authsdk.KindInternal)
			require.Equal(t, authsdk.ErrInternal.Message, body.Message)
			require.NotContains(t, rec.Body.String(), "sqlite")
		})
	}
}

func TestRateLimit_Login(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	trusted, err := httpx.ParseTrustedProxies([]string{"192.0.2.1"})
	require.NoError(t, err)

	s := newServer(t, authhttp.RateLimits{
		Credential:     httpx.RateLimitConfig{Requests: 2, Window: time.Minute, Burst: 2},
		TrustedProxies: trusted,
	})
	s.addUser(t, "u1", "a@x.com", "secret1", true)

	for range 2 {
		rec := s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: "a@x.com", Password: "wrong"},
			"X-Forwarded-For", "198.51.100.6")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: "a@x.com", Password: "secret1"},
		"X-Forwarded-For", "198.51.100.6")
	requireError(t, rec, http.StatusTooManyRequests, authsdk.KindRateLimited)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other clients behind the same proxy are unaffected.
	rec = s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: "a@x.com", Password: "secret1"},
		"X-Forwarded-For", "198.51.100.7")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_LoginIgnoresSpoofedForwarding(t *testing.T) {
	s := newServer(t, authhttp.RateLimits{
		Credential: httpx.RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5},
	})
	s.addUser(t, "u1", "a@x.com", "secret1", true)

	admitted := 0
	for i := range 50 {
		rec := s.do(t, http.MethodPost, authsdk.PathLogin, authsdk.LoginRequest{Email: "a@x.com", Password: "wrong"},
			"X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1),
			"X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		if rec.Code != http.StatusTooManyRequests {
			admitted++
		}
	}
	require.Equal(t, 5, admitted, "rotating forwarding headers must not open new buckets")
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t, generousLimits)

	rec := s.do(t, http.MethodGet, authsdk.PathLogin, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/auth/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
