package retry

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

// DefaultCacheCapacity is the capacity used when none is configured
const DefaultCacheCapacity = 4096

// RetryContextCache stores stateful retry contexts by key.
// Implementations must be safe for concurrent use.
type RetryContextCache interface {
	// Get returns the context for key and marks it as recently used
	Get(key StateKey) (*RetryContext, bool)

	// Put registers rc under key, failing with types.ErrAlreadyPresent if key is taken
	Put(key StateKey, rc *RetryContext) error

	// Remove deletes key, removing an absent key is a no-op
	Remove(key StateKey)

	// Len returns the number of cached contexts
	Len() int
}

// EvictCallback is notified when a context is dropped to respect capacity or expiry
type EvictCallback func(key StateKey, rc *RetryContext)

// cacheEntry is one cached context with its access bookkeeping
type cacheEntry struct {
	rc         *RetryContext
	lastAccess atomic.Int64  // unix nanos of the last Get or Put
	tick       atomic.Uint64 // global access order, breaks timestamp ties
}

type cacheShard struct {
	sync.RWMutex
	items map[StateKey]*cacheEntry
}

// ShardedContextCache is a bounded in-memory RetryContextCache.
//
// Keys are spread over independently locked shards so unrelated keys never
// contend. When an insert pushes the size past capacity the least recently
// accessed entry is evicted. Eviction is soft: the evicted series simply
// restarts its attempt count on the next call.
type ShardedContextCache struct {
	shards   []*cacheShard
	capacity int
	size     atomic.Int64
	ticks    atomic.Uint64
	clock    types.Clock
	onEvict  EvictCallback
}

// CacheOption configures a ShardedContextCache
type CacheOption func(*ShardedContextCache)

// WithCacheClock sets the clock used for access times
func WithCacheClock(clock types.Clock) CacheOption {
	return func(c *ShardedContextCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithShards sets the number of shards
func WithShards(n int) CacheOption {
	return func(c *ShardedContextCache) {
		if n > 0 {
			c.shards = newCacheShards(n)
		}
	}
}

// WithEvictCallback sets the eviction callback
func WithEvictCallback(fn EvictCallback) CacheOption {
	return func(c *ShardedContextCache) {
		c.onEvict = fn
	}
}

// NewShardedContextCache creates a cache bounded to capacity entries
func NewShardedContextCache(capacity int, opts ...CacheOption) *ShardedContextCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	c := &ShardedContextCache{
		shards:   newCacheShards(32),
		capacity: capacity,
		clock:    types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func newCacheShards(n int) []*cacheShard {
	shards := make([]*cacheShard, n)
	for i := range shards {
		shards[i] = &cacheShard{items: make(map[StateKey]*cacheEntry)}
	}
	return shards
}

// getShard returns the shard responsible for key (FNV-1a over the key string)
func (c *ShardedContextCache) getShard(key StateKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return c.shards[int(h.Sum32()%uint32(len(c.shards)))]
}

func (c *ShardedContextCache) touch(e *cacheEntry) {
	e.lastAccess.Store(c.clock.Now().UnixNano())
	e.tick.Store(c.ticks.Add(1))
}

// Get implements RetryContextCache
func (c *ShardedContextCache) Get(key StateKey) (*RetryContext, bool) {
	shard := c.getShard(key)
	shard.RLock()
	defer shard.RUnlock()

	e, ok := shard.items[key]
	if !ok {
		return nil, false
	}
	c.touch(e)
	return e.rc, true
}

// Put implements RetryContextCache
func (c *ShardedContextCache) Put(key StateKey, rc *RetryContext) error {
	if rc == nil {
		return fmt.Errorf("put %s: nil retry context", key)
	}

	shard := c.getShard(key)
	shard.Lock()
	if _, exists := shard.items[key]; exists {
		shard.Unlock()
		return fmt.Errorf("put %s: %w", key, types.ErrAlreadyPresent)
	}
	e := &cacheEntry{rc: rc}
	c.touch(e)
	shard.items[key] = e
	shard.Unlock()

	c.size.Add(1)
	// each eviction first claims one unit of excess, so concurrent Puts never
	// evict more entries than the bound requires
	for {
		n := c.size.Load()
		if n <= int64(c.capacity) {
			break
		}
		if !c.size.CompareAndSwap(n, n-1) {
			continue
		}
		if !c.evictOldest(key) {
			c.size.Add(1)
			break
		}
	}
	return nil
}

// Remove implements RetryContextCache
func (c *ShardedContextCache) Remove(key StateKey) {
	shard := c.getShard(key)
	shard.Lock()
	_, ok := shard.items[key]
	delete(shard.items, key)
	shard.Unlock()

	if ok {
		c.size.Add(-1)
	}
}

// Len implements RetryContextCache
func (c *ShardedContextCache) Len() int {
	return int(c.size.Load())
}

// Capacity returns the configured bound
func (c *ShardedContextCache) Capacity() int {
	return c.capacity
}

// LastAccess returns the last access time of key without touching it
func (c *ShardedContextCache) LastAccess(key StateKey) (time.Time, bool) {
	shard := c.getShard(key)
	shard.RLock()
	defer shard.RUnlock()

	e, ok := shard.items[key]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, e.lastAccess.Load()), true
}

// evictOldest drops the least recently accessed entry other than keep.
// It returns false when there was nothing to evict.
func (c *ShardedContextCache) evictOldest(keep StateKey) bool {
	for {
		var (
			victimKey   StateKey
			victimEntry *cacheEntry
			victimShard *cacheShard
			oldest      uint64
		)

		for _, shard := range c.shards {
			shard.RLock()
			for k, e := range shard.items {
				if k == keep {
					continue
				}
				if t := e.tick.Load(); victimEntry == nil || t < oldest {
					victimKey, victimEntry, victimShard, oldest = k, e, shard, t
				}
			}
			shard.RUnlock()
		}

		if victimEntry == nil {
			return false
		}

		victimShard.Lock()
		current, ok := victimShard.items[victimKey]
		if ok && current == victimEntry && current.tick.Load() == oldest {
			delete(victimShard.items, victimKey)
			victimShard.Unlock()
			if c.onEvict != nil {
				c.onEvict(victimKey, victimEntry.rc)
			}
			return true
		}
		victimShard.Unlock()
		// the victim was touched or removed concurrently, rescan
	}
}
