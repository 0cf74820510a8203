package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/afpdata/mailsift/internal/search"
)

// ResultCache holds recent result sets for a short window so identical
// repeated searches don't hit the store again. Entries are keyed by a
// fingerprint of the compiled statement and its bound values, so two
// requests that compile identically share an entry.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	result  *ResultSet
	expires time.Time
}

// DefaultCacheTTL matches the five-minute window results stay warm.
const DefaultCacheTTL = 5 * time.Minute

// NewResultCache creates a cache with the given TTL (DefaultCacheTTL
// when zero).
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// CacheKey fingerprints a compiled query: statement text plus typed
// parameter values in order.
func CacheKey(q *search.CompiledQuery) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", q.Statement)
	for _, p := range q.Params {
		fmt.Fprintf(h, "%d:%v\x00", p.Type, p.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result set for key if still fresh.
func (c *ResultCache) Get(key string) (*ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

// Put stores a result set under key.
func (c *ResultCache) Put(key string, rs *ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: rs, expires: c.now().Add(c.ttl)}
}

// Len reports the number of live entries, sweeping expired ones.
func (c *ResultCache) Len() int {
	c.sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}

// Janitor sweeps expired entries periodically until ctx is cancelled.
func (c *ResultCache) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
