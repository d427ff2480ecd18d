package postgres

import (
	"context"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type usersRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, name, password_hash, profile, active, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u       domain.User
		profile string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &profile, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Profile = domain.Profile(profile)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, profile, active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Profile), u.Active,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUserProfile(ctx context.Context, u domain.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $1, email = $2, profile = $3, updated_at = now() WHERE id = $4`,
		u.Name, u.Email, string(u.Profile), u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, hash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) SetUserActive(ctx context.Context, userID string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET active = $1, updated_at = now() WHERE id = $2`, active, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
