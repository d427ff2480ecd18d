package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type refreshTokensRepo struct {
	pool *pgxpool.Pool
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		t.TokenHash, t.UserID, t.CreatedAt, t.ExpiresAt,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.pool.QueryRow(ctx,
		`SELECT token_hash, user_id, created_at, expires_at FROM refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.TokenHash, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return t, nil
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
