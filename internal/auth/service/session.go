package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

const maxEmailLength = 254

// fallbackTimingHash is a cost-10 bcrypt hash of a discarded random password,
// used when a timing hash cannot be generated at the configured cost.
const fallbackTimingHash = "$2a$10$n2OAbUt69W2ii0a/Nq31Oup7eGrqvS.COaauaM1FRytLATMlVMWXC"

// AccessTokenCodec issues and verifies signed access tokens.
type AccessTokenCodec interface {
	jwtx.Signer
	jwtx.Verifier
	TTL() time.Duration
}

// PasswordHasher hashes and checks user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	NeedsRehash(hash string) bool
}

// SessionService owns login, refresh, logout and current-user resolution.
type SessionService struct {
	Users         store.Users
	RefreshTokens *RefreshTokenStore
	Tokens        AccessTokenCodec
	Passwords     PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

// Login checks email and password and opens a new session. Unknown email,
// inactive account and wrong password all fail with ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, email, password string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	if err := validateEmail(email); err != nil {
		return domain.Session{}, err
	}
	if password == "" {
		return domain.Session{}, invalidField("password", "is required")
	}
	if len(password) > cryptox.MaxPasswordLength {
		return domain.Session{}, invalidField("password", "is too long")
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Spend the same bcrypt work as a real mismatch.
			s.Passwords.Verify(password, s.timingHash(ctx))
			return domain.Session{}, ErrInvalidCredentials
		}
		return domain.Session{}, fmt.Errorf("lookup user by email: %w", err)
	}

	if !s.Passwords.Verify(password, u.PasswordHash) {
		l.Info("login rejected", "user_id", u.ID, "reason", "password_mismatch")
		return domain.Session{}, ErrInvalidCredentials
	}
	if !u.Active {
		l.Info("login rejected", "user_id", u.ID, "reason", "inactive")
		return domain.Session{}, ErrInvalidCredentials
	}

	if s.Passwords.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u.ID, password)
	}

	access, err := s.issueAccess(u)
	if err != nil {
		return domain.Session{}, err
	}

	refresh, err := s.RefreshTokens.Create(ctx, u.ID)
	if err != nil {
		return domain.Session{}, err
	}

	l.Info("login succeeded", "user_id", u.ID)
	return domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.Tokens.TTL(),
		User:         u.Public(),
	}, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token
// itself is left as is and stays usable until it expires or is logged out.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	if refreshToken == "" {
		return domain.Session{}, invalidField("refreshToken", "is required")
	}

	rec, ok, err := s.RefreshTokens.Find(ctx, refreshToken)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, ErrInvalidToken
	}
	if !s.RefreshTokens.IsValid(rec) {
		l.Info("refresh rejected", "user_id", rec.UserID, "reason", "expired")
		return domain.Session{}, ErrInvalidToken
	}

	u, err := s.Users.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Warn("refresh token owner missing", "user_id", rec.UserID)
			return domain.Session{}, ErrInvalidToken
		}
		return domain.Session{}, fmt.Errorf("lookup user by id: %w", err)
	}
	if !u.Active {
		l.Info("refresh rejected", "user_id", u.ID, "reason", "inactive")
		return domain.Session{}, ErrInactiveUser
	}

	access, err := s.issueAccess(u)
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		AccessToken: access,
		ExpiresIn:   s.Tokens.TTL(),
		User:        u.Public(),
	}, nil
}

// Logout deletes refreshToken. Unknown and expired tokens succeed too.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return invalidField("refreshToken", "is required")
	}

	deleted, err := s.RefreshTokens.Delete(ctx, refreshToken)
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Debug("logout", "deleted", deleted)
	return nil
}

// CurrentUser resolves an authenticated identity by subject id. A subject
// that no longer exists fails with ErrInvalidToken; a deactivated one with
// ErrInactiveUser.
func (s *SessionService) CurrentUser(ctx context.Context, id domain.Identity) (domain.PublicUser, error) {
	if id.UserID == "" {
		return domain.PublicUser{}, ErrInvalidToken
	}

	u, err := s.Users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PublicUser{}, ErrInvalidToken
		}
		return domain.PublicUser{}, fmt.Errorf("lookup user by id: %w", err)
	}
	if !u.Active {
		return domain.PublicUser{}, ErrInactiveUser
	}
	return u.Public(), nil
}

// IdentityFromClaims maps verified token claims onto a domain identity.
func IdentityFromClaims(c jwtx.Claims) domain.Identity {
	return domain.Identity{
		UserID:  c.Subject,
		Email:   c.Email,
		Profile: domain.Profile(c.Profile),
	}
}

func (s *SessionService) issueAccess(u domain.User) (string, error) {
	token, err := s.Tokens.Issue(jwtx.Identity{
		Subject: u.ID,
		Email:   u.Email,
		Profile: string(u.Profile),
	})
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

// rehash upgrades a stored hash to the configured cost. Failure leaves the
// old hash in place; the login itself has already succeeded.
func (s *SessionService) rehash(ctx context.Context, userID, password string) {
	l := slogx.FromContext(ctx)

	hash, err := s.Passwords.Hash(password)
	if err != nil {
		l.Warn("password rehash failed", "user_id", userID, "err", err)
		return
	}
	if err := s.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		l.Warn("password rehash not stored", "user_id", userID, "err", err)
		return
	}
	l.Info("password rehashed", "user_id", userID)
}

// timingHash is a throwaway hash compared against when the email is unknown.
// It is generated at the configured cost, or falls back to a fixed one.
func (s *SessionService) timingHash(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		s.dummyHash = fallbackTimingHash

		tok, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			slogx.FromContext(ctx).Warn("timing hash: using fallback", "err", err)
			return
		}
		hash, err := s.Passwords.Hash(tok)
		if err != nil {
			slogx.FromContext(ctx).Warn("timing hash: using fallback", "err", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func validateEmail(email string) error {
	if email == "" {
		return invalidField("email", "is required")
	}
	if len(email) > maxEmailLength {
		return invalidField("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidField("email", "is not a valid address")
	}
	return nil
}
