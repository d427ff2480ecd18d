// Package redis stores refresh tokens in Redis, one key per token fingerprint.
// Keys carry a TTL matching the record's expiry so abandoned sessions age out
// without a sweep.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "sessionauth:"

// Options configures the redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RefreshTokenStore implements store.RefreshTokens on top of a redis client.
type RefreshTokenStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ store.RefreshTokens = (*RefreshTokenStore)(nil)

// Open dials redis with opts and verifies connectivity.
func Open(ctx context.Context, opts Options) (*RefreshTokenStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return New(rdb, opts.KeyPrefix), nil
}

// New wraps an existing client. An empty prefix selects DefaultKeyPrefix.
func New(rdb redis.UniversalClient, prefix string) *RefreshTokenStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RefreshTokenStore{rdb: rdb, prefix: prefix}
}

// Ping verifies the connection is still alive.
func (s *RefreshTokenStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RefreshTokenStore) Close() error { return s.rdb.Close() }

type record struct {
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"` // unix ms
	ExpiresAt int64  `json:"expires_at"` // unix ms
}

func (s *RefreshTokenStore) key(hash string) string {
	return s.prefix + "rt:" + hash
}

func (s *RefreshTokenStore) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	payload, err := json.Marshal(record{
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt.UnixMilli(),
		ExpiresAt: t.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	// Keep already-expired records briefly so lazy expiry still sees them.
	ttl := max(time.Until(t.ExpiresAt), time.Second)

	ok, err := s.rdb.SetNX(ctx, s.key(t.TokenHash), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *RefreshTokenStore) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	raw, err := s.rdb.Get(ctx, s.key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RefreshToken{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RefreshToken{}, err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.RefreshToken{}, fmt.Errorf("redis: corrupt refresh token record: %w", err)
	}
	return domain.RefreshToken{
		TokenHash: hash,
		UserID:    rec.UserID,
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
	}, nil
}

func (s *RefreshTokenStore) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(hash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredRefreshTokens scans the token keyspace and removes records
// whose expiry has passed but whose key TTL has not yet fired.
func (s *RefreshTokenStore) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	iter := s.rdb.Scan(ctx, 0, s.prefix+"rt:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, err
		}

		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ExpiresAt <= now.UnixMilli() {
			n, err := s.rdb.Del(ctx, key).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
	}
	return deleted, iter.Err()
}
