package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// ErrMissingBearer is returned by ParseBearer when no bearer credential is present.
var ErrMissingBearer = errors.New("httpx: missing bearer credential")

const bearerScheme = "Bearer "

// ParseBearer extracts the token from an Authorization header value. The
// scheme is matched case-insensitively and must be followed by a non-empty
// token.
func ParseBearer(header string) (string, error) {
	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

// AuthnMiddleware admits requests carrying a bearer token that v accepts and
// attaches its claims to the request context. It only rejects on the
// credential itself; whatever the wrapped handler writes is left untouched.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, err := ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="sessionauth"`)
				WriteError(w, http.StatusUnauthorized, KindMissingCredential, "Missing bearer token.")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("jwt verify failed", "err", err)
				writeBearerError(w, "Invalid or expired token.")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sessionauth", error="invalid_token"`)
	WriteError(w, http.StatusUnauthorized, KindInvalidToken, desc)
}
