package cache

import (
	"sync/atomic"

	"github.com/IvanBrykalov/tagcache/internal/singleflight"
)

// entry is one cached record. Its value may be deferred; only the entry that
// ends up installed is ever forced.
type entry[K comparable, V any] struct {
	key     K
	val     *singleflight.Value[V]
	version uint64

	sliding  bool
	lifetime int64        // nanoseconds
	expires  atomic.Int64 // UnixNano deadline

	// expired is one-way: once set, every check reports expired.
	expired atomic.Bool

	// groups is a copy-on-write list of the tag groups this entry joined.
	groups atomic.Pointer[[]*tagGroup[K, V]]
}

func newEntry[K comparable, V any](k K, val *singleflight.Value[V], version uint64, o EntryOptions, now int64) *entry[K, V] {
	e := &entry[K, V]{
		key:      k,
		val:      val,
		version:  version,
		sliding:  o.Sliding,
		lifetime: int64(o.Lifetime),
	}
	e.expires.Store(now + e.lifetime)
	return e
}

// isExpired reports whether e is expired at now. A successful check on a
// sliding entry pushes its deadline to now+lifetime; the deadline never
// moves backwards under concurrent checks.
func (e *entry[K, V]) isExpired(now int64) bool {
	if e.peekExpired(now) {
		return true
	}
	if e.sliding {
		next := now + e.lifetime
		for {
			cur := e.expires.Load()
			if next <= cur || e.expires.CompareAndSwap(cur, next) {
				break
			}
		}
	}
	return false
}

// peekExpired is isExpired without the sliding side effect.
func (e *entry[K, V]) peekExpired(now int64) bool {
	return e.expired.Load() || now >= e.expires.Load()
}

// markExpired is idempotent; it reports whether this call made the transition.
func (e *entry[K, V]) markExpired() bool {
	return e.expired.CompareAndSwap(false, true)
}

func (e *entry[K, V]) addGroup(g *tagGroup[K, V]) {
	for {
		old := e.groups.Load()
		var next []*tagGroup[K, V]
		if old != nil {
			next = make([]*tagGroup[K, V], len(*old), len(*old)+1)
			copy(next, *old)
		}
		next = append(next, g)
		if e.groups.CompareAndSwap(old, &next) {
			return
		}
	}
}

// takeGroups detaches and returns every group link recorded so far.
func (e *entry[K, V]) takeGroups() []*tagGroup[K, V] {
	p := e.groups.Swap(nil)
	if p == nil {
		return nil
	}
	return *p
}
