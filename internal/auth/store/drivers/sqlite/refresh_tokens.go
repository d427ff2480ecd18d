package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
)

type refreshTokensRepo struct {
	db *sql.DB
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		t.TokenHash, t.UserID, toMillis(t.CreatedAt), toMillis(t.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshToken, error) {
	var (
		t                    domain.RefreshToken
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token_hash, user_id, created_at, expires_at FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.TokenHash, &t.UserID, &createdAt, &expiresAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.CreatedAt = fromMillis(createdAt)
	t.ExpiresAt = fromMillis(expiresAt)
	return t, nil
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ?`, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
