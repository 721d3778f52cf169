// Package cache is an in-process TTL cache used for catalog reads and
// idempotency keys.
package cache

import (
	"strings"
	"sync"
	"time"
)

type item struct {
	value      interface{}
	expiration int64
}

type Cache struct {
	items map[string]item
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a cache whose entries live for defaultTTL unless Set is given a
// different duration. A sweeper drops expired entries every sweepEvery until
// Close is called; a non-positive sweepEvery disables it.
func New(defaultTTL, sweepEvery time.Duration) *Cache {
	c := &Cache{
		items: make(map[string]item),
		ttl:   defaultTTL,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if sweepEvery > 0 {
		go c.sweep(sweepEvery)
	}
	return c
}

func (c *Cache) Set(key string, value interface{}, ttl ...time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiration: c.expiry(ttl)}
}

// SetNX stores value only when key is absent or expired. It reports whether
// the value was stored; when it was not, the current value is returned.
func (c *Cache) SetNX(key string, value interface{}, ttl ...time.Duration) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok && c.now().UnixNano() <= existing.expiration {
		return existing.value, false
	}
	c.items[key] = item{value: value, expiration: c.expiry(ttl)}
	return value, true
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, found := c.items[key]
	if !found || c.now().UnixNano() > it.expiration {
		return nil, false
	}
	return it.value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper. The cache stays usable afterwards.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) expiry(ttl []time.Duration) int64 {
	d := c.ttl
	if len(ttl) > 0 {
		d = ttl[0]
	}
	return c.now().Add(d).UnixNano()
}

func (c *Cache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for key, it := range c.items {
		if now > it.expiration {
			delete(c.items, key)
		}
	}
}
