package jwtx

import "errors"

// Signer issues access tokens for an identity.
type Signer interface {
	Issue(id Identity) (string, error)
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// ErrInvalidToken is the only error Verify callers need to match on. The
// concrete cause is wrapped alongside it for logging.
var ErrInvalidToken = errors.New("jwtx: invalid token")

var (
	ErrMissingSecret = errors.New("jwtx: signing secret is required")

	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrAlgMismatch  = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)
