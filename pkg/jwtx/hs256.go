package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Config configures an HS256Codec.
type HS256Config struct {
	// Secret is the shared HMAC key. Required.
	Secret []byte

	// Issuer is stamped into "iss" and enforced on verify when non-empty.
	Issuer string

	// TTL is the access token lifetime. Zero selects DefaultAccessTokenTTL.
	TTL time.Duration

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// HS256Codec signs and verifies access tokens with a shared secret.
type HS256Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

var (
	_ Signer   = (*HS256Codec)(nil)
	_ Verifier = (*HS256Codec)(nil)
)

// NewHS256Codec returns a codec for cfg. An empty secret is an error; there
// is no fallback key.
func NewHS256Codec(cfg HS256Config) (*HS256Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultAccessTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &HS256Codec{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		leeway: cfg.Leeway,
		now:    cfg.Now,
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	c.parser = jwt.NewParser(opts...)

	return c, nil
}

// TTL reports the lifetime of issued tokens.
func (c *HS256Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token asserting id, valid for the configured TTL.
func (c *HS256Codec) Issue(id Identity) (string, error) {
	if id.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaim)
	}
	claims := NewAccessClaims(id, c.issuer, c.ttl, c.now().UTC())
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and validity window. Every
// failure wraps ErrInvalidToken together with the specific cause.
func (c *HS256Codec) Verify(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMalformed)
	}

	var claims Claims
	token, err := c.parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, classify(err))
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrInvalidClaim)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: %w: missing subject", ErrInvalidToken, ErrInvalidClaim)
	}

	return claims, nil
}

// classify maps parser errors onto the package's own error values.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return ErrInvalidSig
		}
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
