package retry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/goretry/internal/testutils"
	"github.com/jzx17/goretry/pkg/types"
)

func key(fp string) StateKey {
	return StateKey{Label: "send", Fingerprint: fp}
}

func newContext(fp string) *RetryContext {
	return NewStatefulRetryContext(key(fp), time.Now())
}

func TestShardedContextCache_PutGetRemove(t *testing.T) {
	cache := NewShardedContextCache(10)
	rc := newContext("001")

	require.NoError(t, cache.Put(key("001"), rc))
	assert.Equal(t, 1, cache.Len())

	got, ok := cache.Get(key("001"))
	require.True(t, ok)
	assert.Same(t, rc, got)

	err := cache.Put(key("001"), newContext("001"))
	assert.ErrorIs(t, err, types.ErrAlreadyPresent)
	assert.Equal(t, 1, cache.Len())

	cache.Remove(key("001"))
	cache.Remove(key("001"))
	_, ok = cache.Get(key("001"))
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())

	assert.Error(t, cache.Put(key("nil"), nil))
}

func TestShardedContextCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	var evicted []StateKey
	cache := NewShardedContextCache(2, WithEvictCallback(func(k StateKey, _ *RetryContext) {
		evicted = append(evicted, k)
	}))

	require.NoError(t, cache.Put(key("a"), newContext("a")))
	require.NoError(t, cache.Put(key("b"), newContext("b")))

	// touching a makes b the eviction candidate
	_, ok := cache.Get(key("a"))
	require.True(t, ok)

	require.NoError(t, cache.Put(key("c"), newContext("c")))

	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, []StateKey{key("b")}, evicted)
	_, ok = cache.Get(key("b"))
	assert.False(t, ok)
	_, ok = cache.Get(key("a"))
	assert.True(t, ok)
	_, ok = cache.Get(key("c"))
	assert.True(t, ok)
}

func TestShardedContextCache_CapacityOne(t *testing.T) {
	cache := NewShardedContextCache(1, WithShards(1))

	require.NoError(t, cache.Put(key("a"), newContext("a")))
	require.NoError(t, cache.Put(key("b"), newContext("b")))

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get(key("a"))
	assert.False(t, ok)
	_, ok = cache.Get(key("b"))
	assert.True(t, ok)
}

func TestShardedContextCache_LastAccess(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	cache := NewShardedContextCache(4, WithCacheClock(clock))

	require.NoError(t, cache.Put(key("a"), newContext("a")))
	first, ok := cache.LastAccess(key("a"))
	require.True(t, ok)
	assert.True(t, first.Equal(clock.Now()))

	clock.Mock.Advance(time.Second)
	_, _ = cache.Get(key("a"))

	second, ok := cache.LastAccess(key("a"))
	require.True(t, ok)
	assert.Equal(t, time.Second, second.Sub(first))

	_, ok = cache.LastAccess(key("missing"))
	assert.False(t, ok)
}

func TestShardedContextCache_ConcurrentBounded(t *testing.T) {
	const capacity = 16
	cache := NewShardedContextCache(capacity)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				fp := fmt.Sprintf("%d-%d", g, i)
				_ = cache.Put(key(fp), newContext(fp))
				_, _ = cache.Get(key(fp))
				if i%3 == 0 {
					cache.Remove(key(fp))
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), capacity)
	assert.Equal(t, capacity, cache.Capacity())
}

func TestShardedContextCache_ConcurrentPutsEvictExactly(t *testing.T) {
	const puts = 64
	var evictions atomic.Int32
	cache := NewShardedContextCache(1, WithEvictCallback(func(StateKey, *RetryContext) {
		evictions.Add(1)
	}))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < puts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			fp := fmt.Sprintf("%03d", i)
			assert.NoError(t, cache.Put(key(fp), newContext(fp)))
		}(i)
	}
	close(start)
	wg.Wait()

	stored := 0
	for _, shard := range cache.shards {
		shard.RLock()
		stored += len(shard.items)
		shard.RUnlock()
	}
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1, stored)
	assert.Equal(t, int32(puts-1), evictions.Load())
}

func TestExpiringContextCache(t *testing.T) {
	var evictions int
	var mu sync.Mutex
	cache := NewExpiringContextCache(2, 0, func(StateKey, *RetryContext) {
		mu.Lock()
		evictions++
		mu.Unlock()
	})

	require.NoError(t, cache.Put(key("a"), newContext("a")))
	assert.ErrorIs(t, cache.Put(key("a"), newContext("a")), types.ErrAlreadyPresent)

	cache.Remove(key("a"))
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Put(key("a"), newContext("a")))
	require.NoError(t, cache.Put(key("b"), newContext("b")))
	require.NoError(t, cache.Put(key("c"), newContext("c")))
	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get(key("a"))
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, evictions, "explicit removal must not count as eviction")
}

func TestExpiringContextCache_TTL(t *testing.T) {
	cache := NewExpiringContextCache(10, 50*time.Millisecond, nil)
	require.NoError(t, cache.Put(key("a"), newContext("a")))
	assert.Equal(t, 50*time.Millisecond, cache.TTL())

	_, ok := cache.Get(key("a"))
	require.True(t, ok)

	testutils.AssertEventually(t, func() bool {
		_, ok := cache.Get(key("a"))
		return !ok
	})

	// an expired series can be registered again
	assert.NoError(t, cache.Put(key("a"), newContext("a")))
}

func TestExpiringContextCache_GetRefreshesTTL(t *testing.T) {
	ttl := 120 * time.Millisecond
	cache := NewExpiringContextCache(10, ttl, func(StateKey, *RetryContext) {})
	rc := newContext("a")
	require.NoError(t, cache.Put(key("a"), rc))

	// an actively redelivered series outlives the ttl as long as it is accessed
	deadline := time.Now().Add(3 * ttl)
	for time.Now().Before(deadline) {
		time.Sleep(ttl / 4)
		got, ok := cache.Get(key("a"))
		require.True(t, ok, "entry in active use must not expire")
		require.Same(t, rc, got)
	}

	testutils.AssertEventually(t, func() bool {
		return cache.Len() == 0
	})
	_, ok := cache.Get(key("a"))
	assert.False(t, ok)
}
