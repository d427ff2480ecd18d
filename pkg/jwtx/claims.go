package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes.
const (
	// DefaultAccessTokenTTL is the lifetime of a signed access token.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the lifetime of an opaque refresh token.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Identity is what an access token asserts about its bearer.
type Identity struct {
	Subject string
	Email   string
	Profile string
}

// Claims are the access-token claims. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the user at issuance time.
	Email string `json:"email"`

	// Profile is the user's role label, e.g. "INVESTOR".
	Profile string `json:"profile"`
}

// NewAccessClaims builds claims for id valid from now until now+ttl.
func NewAccessClaims(id Identity, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:   id.Email,
		Profile: id.Profile,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
