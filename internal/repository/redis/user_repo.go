package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const UserTokenPrefix = "login:user:token"

// TokenStore 每个用户只保留一个有效 access token（单点登录），TTL 滑动续期
type TokenStore struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{RDB: rdb, TTL: ttl}
}

func (s *TokenStore) key(userID uint64) string {
	return fmt.Sprintf("%s:%d", UserTokenPrefix, userID)
}

func (s *TokenStore) AddUserToken(ctx context.Context, userID uint64, token string) error {
	if err := s.RDB.Set(ctx, s.key(userID), token, s.TTL).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *TokenStore) GetUserToken(ctx context.Context, userID uint64) (string, error) {
	token, err := s.RDB.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return token, nil
}

func (s *TokenStore) ExtendUserToken(ctx context.Context, userID uint64) error {
	return s.RDB.Expire(ctx, s.key(userID), s.TTL).Err()
}

func (s *TokenStore) DeleteUserToken(ctx context.Context, userID uint64) error {
	return s.RDB.Del(ctx, s.key(userID)).Err()
}
