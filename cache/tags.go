package cache

import (
	"sync"
	"sync/atomic"
)

// tagGroup is the secondary index for one tag: the highest-version entry seen
// per key. Membership changes and the expired transition happen under mu, so
// a link either lands before the group expires or observes the expiry.
type tagGroup[K comparable, V any] struct {
	tag     string
	mu      sync.Mutex
	members map[K]*entry[K, V]
	expired atomic.Bool
}

func newTagGroup[K comparable, V any](tag string) *tagGroup[K, V] {
	return &tagGroup[K, V]{tag: tag, members: make(map[K]*entry[K, V])}
}

// add links e into the group, keeping the highest version per key.
// It returns false if the group has already expired.
func (g *tagGroup[K, V]) add(e *entry[K, V]) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.expired.Load() {
		return false
	}
	if cur := g.members[e.key]; cur == nil || cur.version < e.version {
		g.members[e.key] = e
	}
	return true
}

// remove drops e's membership only if e is still the recorded instance.
func (g *tagGroup[K, V]) remove(e *entry[K, V]) {
	g.mu.Lock()
	if g.members[e.key] == e {
		delete(g.members, e.key)
	}
	g.mu.Unlock()
}

// expire marks the group expired and hands back its members.
func (g *tagGroup[K, V]) expire() []*entry[K, V] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expired.Store(true)
	out := make([]*entry[K, V], 0, len(g.members))
	for _, e := range g.members {
		out = append(out, e)
	}
	g.members = nil
	return out
}

// prune drops expired members and expires the group if nothing is left.
// It reports whether the group is expired afterwards.
func (g *tagGroup[K, V]) prune() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.expired.Load() {
		return true
	}
	for k, e := range g.members {
		if e.expired.Load() {
			delete(g.members, k)
		}
	}
	if len(g.members) == 0 {
		g.expired.Store(true)
		g.members = nil
		return true
	}
	return false
}

func (g *tagGroup[K, V]) isStale() bool { return g.expired.Load() }
