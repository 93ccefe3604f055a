package cache

import (
	"sync"

	"github.com/IvanBrykalov/tagcache/internal/util"
)

// shardMap is a concurrent K -> *T map split into power-of-two shards, each
// guarded by its own RWMutex. It backs both the primary store and the tag
// index. Decisions that depend on the current value (compute) run under the
// shard lock, so no window exists between reading and replacing.
type shardMap[K comparable, T any] struct {
	shards []*shard[K, T]
	hash   func(K) uint64
}

// shard is one independent partition with its own lock and map.
type shard[K comparable, T any] struct {
	mu sync.RWMutex
	m  map[K]*T
	_  util.CacheLinePad
}

func newShardMap[K comparable, T any](shards int, hash func(K) uint64) *shardMap[K, T] {
	n := util.ShardCount(shards)
	sm := &shardMap[K, T]{shards: make([]*shard[K, T], n), hash: hash}
	for i := range sm.shards {
		sm.shards[i] = &shard[K, T]{m: make(map[K]*T)}
	}
	return sm
}

// getShard picks a shard by hashing the key; len(shards) is a power of two.
func (sm *shardMap[K, T]) getShard(k K) *shard[K, T] {
	return sm.shards[util.ShardIndex(sm.hash(k), len(sm.shards))]
}

func (sm *shardMap[K, T]) load(k K) *T {
	s := sm.getShard(k)
	s.mu.RLock()
	v := s.m[k]
	s.mu.RUnlock()
	return v
}

// compute installs next under k when replace(cur) reports true, where cur is
// the value currently stored (nil if absent). It returns the value that
// occupies k afterwards and the value it displaced, if any.
func (sm *shardMap[K, T]) compute(k K, next *T, replace func(cur *T) bool) (winner, displaced *T) {
	s := sm.getShard(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.m[k]
	if cur != nil && !replace(cur) {
		return cur, nil
	}
	s.m[k] = next
	return next, cur
}

// loadOrStore returns the value stored under k, or stores and returns the
// one built by mk. stale values are treated as absent and replaced.
func (sm *shardMap[K, T]) loadOrStore(k K, mk func() *T, stale func(*T) bool) *T {
	s := sm.getShard(k)
	s.mu.RLock()
	v := s.m[k]
	s.mu.RUnlock()
	if v != nil && !stale(v) {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v = s.m[k]; v != nil && !stale(v) {
		return v
	}
	v = mk()
	s.m[k] = v
	return v
}

func (sm *shardMap[K, T]) loadAndDelete(k K) *T {
	s := sm.getShard(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	return v
}

// compareAndDelete removes k only while it still maps to old.
func (sm *shardMap[K, T]) compareAndDelete(k K, old *T) bool {
	s := sm.getShard(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m[k] != old {
		return false
	}
	delete(s.m, k)
	return true
}

// snapshot copies each shard under its read lock and calls fn outside any
// lock, so fn may mutate the map.
func (sm *shardMap[K, T]) snapshot(fn func(k K, v *T)) {
	type kv struct {
		k K
		v *T
	}
	var buf []kv
	for _, s := range sm.shards {
		buf = buf[:0]
		s.mu.RLock()
		for k, v := range s.m {
			buf = append(buf, kv{k, v})
		}
		s.mu.RUnlock()
		for _, p := range buf {
			fn(p.k, p.v)
		}
	}
}

func (sm *shardMap[K, T]) len() int {
	total := 0
	for _, s := range sm.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}
