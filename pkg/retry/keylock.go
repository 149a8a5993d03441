package retry

import (
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyLock is a mutex that can be acquired under a context.
// A weighted semaphore of size 1 gives the cancellable Lock.
type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

type lockShard struct {
	mu    sync.Mutex
	locks map[StateKey]*keyLock
}

// KeyLocker hands out one mutex per StateKey.
// Locks are created on demand and dropped once no caller holds or waits for them,
// so distinct keys never share a lock.
type KeyLocker struct {
	shards []*lockShard
}

// NewKeyLocker creates a KeyLocker
func NewKeyLocker() *KeyLocker {
	shards := make([]*lockShard, 32)
	for i := range shards {
		shards[i] = &lockShard{locks: make(map[StateKey]*keyLock)}
	}
	return &KeyLocker{shards: shards}
}

func (l *KeyLocker) getShard(key StateKey) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return l.shards[int(h.Sum32()%uint32(len(l.shards)))]
}

// Lock acquires the lock for key. It returns ctx.Err() if ctx is done first.
// The returned function releases the lock and must be called exactly once.
func (l *KeyLocker) Lock(ctx context.Context, key StateKey) (func(), error) {
	shard := l.getShard(key)

	shard.mu.Lock()
	kl, ok := shard.locks[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		shard.locks[key] = kl
	}
	kl.refs++
	shard.mu.Unlock()

	if err := kl.sem.Acquire(ctx, 1); err != nil {
		l.release(shard, key, kl)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.sem.Release(1)
			l.release(shard, key, kl)
		})
	}, nil
}

func (l *KeyLocker) release(shard *lockShard, key StateKey, kl *keyLock) {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(shard.locks, key)
	}
}

// Held returns the number of keys with a holder or waiter
func (l *KeyLocker) Held() int {
	n := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		n += len(shard.locks)
		shard.mu.Unlock()
	}
	return n
}
