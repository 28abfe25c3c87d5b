package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreMagicLink(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.SaveMagicLink(ctx, "a", "a@example.com", time.Minute); err != nil {
		t.Fatalf("SaveMagicLink failed: %v", err)
	}
	if err := store.SaveMagicLink(ctx, "b", "b@example.com", time.Minute); err != nil {
		t.Fatalf("SaveMagicLink failed: %v", err)
	}

	link, err := store.ConsumeMagicLink(ctx, "a")
	if err != nil || link.Email != "a@example.com" {
		t.Fatalf("unexpected consume result %+v (%v)", link, err)
	}
	if _, err := store.ConsumeMagicLink(ctx, "a"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected single use, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.ConsumeMagicLink(ctx, "b"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStoreRevocation(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.RevokeSession(ctx, "jti", now.Add(time.Hour))
	if revoked, _ := store.IsSessionRevoked(ctx, "jti"); !revoked {
		t.Fatal("expected revoked session")
	}

	now = now.Add(2 * time.Hour)
	if revoked, _ := store.IsSessionRevoked(ctx, "jti"); revoked {
		t.Fatal("expected revocation to lapse")
	}
}
