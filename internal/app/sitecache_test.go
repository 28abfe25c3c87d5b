package app

import (
	"testing"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/store"
)

func TestSiteCacheExpires(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	cache := newSiteCache(2, time.Minute)
	cache.now = func() time.Time { return now }

	cache.Add(store.Site{ID: 1, Domain: "example.com"})
	if site, ok := cache.Get("example.com"); !ok || site.ID != 1 {
		t.Fatalf("expected cached site, got %+v %v", site, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("example.com"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestSiteCacheEvictsAndRemoves(t *testing.T) {
	cache := newSiteCache(2, time.Hour)
	cache.Add(store.Site{ID: 1, Domain: "a.com"})
	cache.Add(store.Site{ID: 2, Domain: "b.com"})
	cache.Add(store.Site{ID: 3, Domain: "c.com"})

	if _, ok := cache.Get("a.com"); ok {
		t.Fatal("expected least recently used entry to be evicted")
	}
	cache.Remove("b.com")
	if _, ok := cache.Get("b.com"); ok {
		t.Fatal("expected removed entry to be gone")
	}
	if _, ok := cache.Get("c.com"); !ok {
		t.Fatal("expected newest entry to remain")
	}
}
