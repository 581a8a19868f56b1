// modelcache.go - TTL cache for the discovered model list. Model discovery
// is a network call; its result changes rarely, so one fetch per TTL window
// is shared across all requests.

package ai

import (
	"context"
	"sync"
	"time"
)

type modelListCache struct {
	mu       sync.RWMutex
	models   []string
	loadedAt time.Time
	ttl      time.Duration
}

func newModelListCache(ttl time.Duration) *modelListCache {
	return &modelListCache{ttl: ttl}
}

// getOrLoad returns the cached model list, calling load to refresh it when
// the TTL has lapsed. A failed load (empty result) is not cached so the next
// request retries.
func (c *modelListCache) getOrLoad(ctx context.Context, load func(context.Context) []string) []string {
	c.mu.RLock()
	if c.models != nil && time.Since(c.loadedAt) < c.ttl {
		models := c.models
		c.mu.RUnlock()
		return models
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.models != nil && time.Since(c.loadedAt) < c.ttl {
		return c.models
	}

	models := load(ctx)
	if len(models) > 0 {
		c.models = models
		c.loadedAt = time.Now()
	}
	return models
}
