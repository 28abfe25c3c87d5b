// Package session stores magic-link tokens and revoked dashboard sessions.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrTokenNotFound = errors.New("token not found or expired")

// MagicLink is the data kept for an outstanding login link.
type MagicLink struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	SaveMagicLink(ctx context.Context, tokenHash, email string, ttl time.Duration) error
	// ConsumeMagicLink returns the link and deletes it; a link can be used once.
	ConsumeMagicLink(ctx context.Context, tokenHash string) (MagicLink, error)
	RevokeSession(ctx context.Context, jti string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
