package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
)

type usersRepo struct {
	db *sql.DB
}

const userColumns = `id, email, name, password_hash, profile, active, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                    domain.User
		profile              string
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &profile, &u.Active, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Profile = domain.Profile(profile)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Profile), u.Active,
		toMillis(u.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUserProfile(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, profile = ?, updated_at = ? WHERE id = ?`,
		u.Name, u.Email, string(u.Profile), toMillis(time.Now()), u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) SetUserActive(ctx context.Context, userID string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		active, toMillis(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
