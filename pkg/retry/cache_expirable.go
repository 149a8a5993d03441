package retry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jzx17/goretry/pkg/types"
)

// ExpiringContextCache is a RetryContextCache backed by an expirable LRU.
// Besides the capacity bound, contexts not accessed for ttl are treated as
// stale and dropped, so an abandoned series restarts from zero on its next
// delivery. Every hit in Get restarts the entry's ttl.
type ExpiringContextCache struct {
	lru *expirable.LRU[StateKey, *RetryContext]
	ttl time.Duration
	mu  sync.Mutex // serializes Put, Remove and the refresh in Get

	// removing is the key being removed explicitly; its callback is not an eviction
	removing atomic.Pointer[StateKey]
}

// NewExpiringContextCache creates an expiring cache. A ttl of zero disables expiry.
func NewExpiringContextCache(capacity int, ttl time.Duration, onEvict EvictCallback) *ExpiringContextCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	c := &ExpiringContextCache{ttl: ttl}

	var cb expirable.EvictCallback[StateKey, *RetryContext]
	if onEvict != nil {
		cb = func(key StateKey, rc *RetryContext) {
			if p := c.removing.Load(); p != nil && *p == key {
				return
			}
			onEvict(key, rc)
		}
	}
	c.lru = expirable.NewLRU[StateKey, *RetryContext](capacity, cb, ttl)

	return c
}

// Get implements RetryContextCache
func (c *ExpiringContextCache) Get(key StateKey) (*RetryContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rc, ok := c.lru.Get(key)
	if ok {
		// re-adding an existing key only moves its expiry forward
		c.lru.Add(key, rc)
	}
	return rc, ok
}

// Put implements RetryContextCache
func (c *ExpiringContextCache) Put(key StateKey, rc *RetryContext) error {
	if rc == nil {
		return fmt.Errorf("put %s: nil retry context", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(key); ok {
		return fmt.Errorf("put %s: %w", key, types.ErrAlreadyPresent)
	}
	c.lru.Add(key, rc)
	return nil
}

// Remove implements RetryContextCache
func (c *ExpiringContextCache) Remove(key StateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removing.Store(&key)
	c.lru.Remove(key)
	c.removing.Store(nil)
}

// Len implements RetryContextCache
func (c *ExpiringContextCache) Len() int {
	return c.lru.Len()
}

// TTL returns the configured expiry
func (c *ExpiringContextCache) TTL() time.Duration {
	return c.ttl
}
