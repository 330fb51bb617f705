package dataforseo

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// responseCache is an in-memory TTL cache for upstream responses. Keyword
// metrics move slowly, so repeated queries within the TTL skip the paid
// upstream call entirely.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// cacheKey derives a stable key from the endpoint path and the exact task
// body bytes.
func cacheKey(path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *responseCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.body, true
}

func (c *responseCache) Set(key string, body []byte) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep so expired entries don't accumulate unbounded.
	if len(c.entries) > 1024 {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{body: body, expiresAt: now.Add(c.ttl)}
}
