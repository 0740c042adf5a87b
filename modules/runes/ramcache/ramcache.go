// Package ramcache provides a small in-process cache for hot read paths.
// Entries expire after a TTL and can be invalidated explicitly when the
// underlying data is written.
package ramcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

type Cache[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]item[V]
	group singleflight.Group
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:   ttl,
		items: make(map[string]item[V]),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	cached, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(cached.expiresAt) {
		var zero V
		return zero, false
	}
	return cached.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]item[V])
	c.mu.Unlock()
}

// GetOrFetch returns the cached value for key, or calls fetch to load it.
// Concurrent fetches for the same key are collapsed into one call.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	result, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}
