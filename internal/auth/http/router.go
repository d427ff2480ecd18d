package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// RateLimits configures the per-route token buckets. Zero values fall back
// to httpx.CredentialLimit and httpx.SessionLimit. Forwarding headers are
// only honoured from TrustedProxies.
type RateLimits struct {
	Credential     httpx.RateLimitConfig
	Session        httpx.RateLimitConfig
	TrustedProxies httpx.TrustedProxies
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier jwtx.Verifier
	limits   RateLimits
	logger   *slog.Logger

	Sessions *service.SessionService
}

func NewRouter(sessions *service.SessionService, verifier jwtx.Verifier, limits RateLimits, logger *slog.Logger) *Router {
	r := &Router{
		Mux:      http.NewServeMux(),
		verifier: verifier,
		limits: RateLimits{
			Credential:     limits.Credential.OrDefault(httpx.CredentialLimit),
			Session:        limits.Session.OrDefault(httpx.SessionLimit),
			TrustedProxies: limits.TrustedProxies,
		},
		logger:   logger,
		Sessions: sessions,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers the session endpoints on the mux.
func (r *Router) ApplyRoutes() {
	// Login and refresh accept secrets, so they get the strict bucket by IP.
	r.Mux.Handle("POST "+authsdk.PathLogin,
		httpx.Chain(&LoginHandler{Sessions: r.Sessions},
			httpx.RateLimitByIP(r.limits.Credential, r.limits.TrustedProxies),
		),
	)
	r.Mux.Handle("POST "+authsdk.PathRefresh,
		httpx.Chain(&RefreshHandler{Sessions: r.Sessions},
			httpx.RateLimitByIP(r.limits.Credential, r.limits.TrustedProxies),
		),
	)

	r.Mux.Handle("POST "+authsdk.PathLogout,
		httpx.Chain(&LogoutHandler{Sessions: r.Sessions},
			httpx.RateLimitByIP(r.limits.Session, r.limits.TrustedProxies),
		),
	)

	r.Mux.Handle("GET "+authsdk.PathMe,
		httpx.Chain(&MeHandler{Sessions: r.Sessions},
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.limits.Session, r.limits.TrustedProxies),
		),
	)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}
