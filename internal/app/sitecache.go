package app

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ankushKun/commentkit-sub001/internal/store"
)

type cachedSite struct {
	site      store.Site
	expiresAt time.Time
}

// siteCache maps a domain to its site for the widget read path.
type siteCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cachedSite]
	ttl   time.Duration
	now   func() time.Time
}

func newSiteCache(size int, ttl time.Duration) *siteCache {
	cache, err := lru.New[string, cachedSite](size)
	if err != nil {
		panic(err)
	}
	return &siteCache{cache: cache, ttl: ttl, now: time.Now}
}

func (c *siteCache) Get(domain string) (store.Site, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.cache.Get(domain)
	if !ok {
		return store.Site{}, false
	}
	if c.now().After(item.expiresAt) {
		c.cache.Remove(domain)
		return store.Site{}, false
	}
	return item.site, true
}

func (c *siteCache) Add(site store.Site) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(site.Domain, cachedSite{site: site, expiresAt: c.now().Add(c.ttl)})
}

func (c *siteCache) Remove(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(domain)
}
