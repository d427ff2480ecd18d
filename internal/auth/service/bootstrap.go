package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/pkg/idx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

var ErrBootstrapAlready = errors.New("system already bootstrapped")

// BootstrapService seeds the first administrator into an empty directory.
type BootstrapService struct {
	Users     store.Users
	Passwords PasswordHasher
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Users.IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates an active ADMIN user from req and returns its id. It
// refuses with ErrBootstrapAlready once any user exists.
func (s *BootstrapService) Bootstrap(ctx context.Context, req domain.BootstrapData) (string, error) {
	l := slogx.FromContext(ctx)

	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return "", err
	}
	if bootstrapped {
		return "", ErrBootstrapAlready
	}

	if err := validateEmail(req.AdminEmail); err != nil {
		return "", err
	}
	if req.AdminPassword == "" {
		return "", invalidField("password", "is required")
	}

	hash, err := s.Passwords.Hash(req.AdminPassword)
	if err != nil {
		l.Error("failed to hash admin password", slog.Any("error", err))
		return "", err
	}

	name := req.AdminName
	if name == "" {
		name = "Administrator"
	}

	id := idx.New().String()
	err = s.Users.CreateUser(ctx, domain.User{
		ID:           id,
		Email:        req.AdminEmail,
		Name:         name,
		PasswordHash: hash,
		Profile:      domain.ProfileAdmin,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return "", ErrBootstrapAlready
		}
		return "", err
	}

	l.Info("bootstrapped admin user", "user_id", id)
	return id, nil
}
