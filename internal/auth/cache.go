package auth

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds the cache between prunes; handshakes are infrequent
// enough that an occasional full scan is cheap.
const pruneThreshold = 1024

type cacheEntry struct {
	userID  string
	expires time.Time
}

// CachingResolver memoizes successful resolutions for a TTL, so a client
// reconnecting in a burst (page reload, several tabs) does not re-verify the
// same token each time. Failures are never cached.
type CachingResolver struct {
	next Resolver
	ttl  time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachingResolver wraps next with a TTL cache. A non-positive ttl
// disables caching.
func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachingResolver) Resolve(ctx context.Context, token string) (string, error) {
	if c.ttl <= 0 {
		return c.next.Resolve(ctx, token)
	}

	now := time.Now()
	c.mu.Lock()
	if entry, ok := c.entries[token]; ok && now.Before(entry.expires) {
		c.mu.Unlock()
		return entry.userID, nil
	}
	c.mu.Unlock()

	userID, err := c.next.Resolve(ctx, token)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if len(c.entries) >= pruneThreshold {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[token] = cacheEntry{userID: userID, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return userID, nil
}
