package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	magicLinkPrefix = "commentkit:magic:"
	revokedPrefix   = "commentkit:revoked:"
)

// RedisStore keeps magic links and revocations in Redis with native TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveMagicLink(ctx context.Context, tokenHash, email string, ttl time.Duration) error {
	payload, err := json.Marshal(MagicLink{Email: email, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal magic link: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if err := s.client.Set(ctx, magicLinkPrefix+tokenHash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save magic link: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeMagicLink(ctx context.Context, tokenHash string) (MagicLink, error) {
	raw, err := s.client.GetDel(ctx, magicLinkPrefix+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return MagicLink{}, ErrTokenNotFound
	}
	if err != nil {
		return MagicLink{}, fmt.Errorf("consume magic link: %w", err)
	}

	var link MagicLink
	if err := json.Unmarshal([]byte(raw), &link); err != nil {
		return MagicLink{}, fmt.Errorf("unmarshal magic link: %w", err)
	}
	return link, nil
}

// RevokeSession marks a session id as revoked until the token would have
// expired anyway.
func (s *RedisStore) RevokeSession(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) IsSessionRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
