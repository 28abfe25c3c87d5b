package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process fallback used when REDIS_URL is unset.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	links   map[string]memoryLink
	revoked map[string]time.Time
}

type memoryLink struct {
	link      MagicLink
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		links:   map[string]memoryLink{},
		revoked: map[string]time.Time{},
	}
}

func (s *MemoryStore) SaveMagicLink(_ context.Context, tokenHash, email string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.links[tokenHash] = memoryLink{
		link:      MagicLink{Email: email, CreatedAt: now.UTC()},
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (s *MemoryStore) ConsumeMagicLink(_ context.Context, tokenHash string) (MagicLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.links[tokenHash]
	delete(s.links, tokenHash)
	if !ok || !s.now().Before(entry.expiresAt) {
		return MagicLink{}, ErrTokenNotFound
	}
	return entry.link, nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
		}
	}
	if now.Before(expiresAt) {
		s.revoked[jti] = expiresAt
	}
	return nil
}

func (s *MemoryStore) IsSessionRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[jti]
	return ok && s.now().Before(until), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
