package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tagcache/internal/singleflight"
	"github.com/IvanBrykalov/tagcache/internal/util"
	"github.com/IvanBrykalov/tagcache/internal/version"
)

// cache is the concurrent store behind Cache. The primary store and the tag
// index are sharded maps; ordering between writes to one key comes from the
// version bank, not from a lock held across operations.
type cache[K comparable, V any] struct {
	store    *shardMap[K, entry[K, V]]
	tags     *shardMap[string, tagGroup[K, V]]
	versions *version.Bank
	hash     func(K) uint64
	closed   atomic.Bool

	opt          Options[K, V]
	log          *zap.Logger
	scanInterval int64

	// beforeLink, if set, runs after a tag group is looked up and before the
	// entry joins it. Tests only.
	beforeLink func(tag string)

	// ---- sweep debounce state (own cache line) ----
	_        util.CacheLinePad
	lastScan atomic.Int64
	sweepSem chan struct{} // one slot: holding it is the sweep guard
}

// New constructs a cache with the provided Options.
// A negative ScanInterval is rejected with ErrInvalidArgument.
func New[K comparable, V any](opt Options[K, V]) (Cache[K, V], error) {
	if opt.ScanInterval < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "scan interval must be positive, got %s", opt.ScanInterval)
	}
	if opt.ScanInterval == 0 {
		opt.ScanInterval = DefaultScanInterval
	}
	if opt.Hash == nil {
		opt.Hash = util.Hash[K]
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &cache[K, V]{
		store:        newShardMap[K, entry[K, V]](opt.Shards, opt.Hash),
		tags:         newShardMap[string, tagGroup[K, V]](opt.Shards, util.Hash[string]),
		versions:     new(version.Bank),
		hash:         opt.Hash,
		opt:          opt,
		log:          log.Named("cache"),
		scanInterval: int64(opt.ScanInterval),
		sweepSem:     make(chan struct{}, 1),
	}
	c.lastScan.Store(c.now())
	return c, nil
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) TryGet(k K) (V, bool, error) {
	var zero V
	if isNilKey(k) {
		return zero, false, errors.Wrap(ErrInvalidArgument, "nil key")
	}
	if c.closed.Load() {
		return zero, false, nil
	}
	now := c.now()
	c.maybeSweep(now)

	e := c.store.load(k)
	if e == nil {
		c.opt.Metrics.Miss()
		return zero, false, nil
	}
	if e.isExpired(now) {
		c.evict(e, EvictExpired)
		c.opt.Metrics.Miss()
		return zero, false, nil
	}
	// A value still being computed is a miss; reads never run or wait on
	// a factory.
	v, done, err := e.val.Peek()
	if !done {
		c.opt.Metrics.Miss()
		return zero, false, nil
	}
	c.opt.Metrics.Hit()
	if err != nil {
		return zero, false, factoryError(err)
	}
	return v, true, nil
}

func (c *cache[K, V]) Add(k K, v V, o EntryOptions) error {
	if err := validate(k, o); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	now := c.now()
	c.maybeSweep(now)

	c.write(k, singleflight.Of(v), o, false)
	return nil
}

func (c *cache[K, V]) GetOrAdd(k K, factory func() (V, error), o EntryOptions) (V, error) {
	var zero V
	if err := validate(k, o); err != nil {
		return zero, err
	}
	if factory == nil {
		return zero, errors.Wrap(ErrInvalidArgument, "nil factory")
	}
	if c.closed.Load() {
		return zero, ErrClosed
	}
	now := c.now()
	c.maybeSweep(now)

	if e := c.store.load(k); e != nil && !e.isExpired(now) {
		c.opt.Metrics.Hit()
		return c.force(context.Background(), e)
	}
	c.opt.Metrics.Miss()

	val := singleflight.New(func(context.Context) (V, error) { return factory() })
	return c.force(context.Background(), c.write(k, val, o, true))
}

func (c *cache[K, V]) GetOrAddAsync(ctx context.Context, k K, factory func(context.Context) (V, error), o EntryOptions) (*Future[V], error) {
	if err := validate(k, o); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "nil factory")
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	now := c.now()
	c.maybeSweep(now)

	e := c.store.load(k)
	if e != nil && !e.isExpired(now) {
		c.opt.Metrics.Hit()
	} else {
		c.opt.Metrics.Miss()
		e = c.write(k, singleflight.New(factory), o, true)
	}
	e.val.Start(ctx)
	return &Future[V]{v: e.val}, nil
}

func (c *cache[K, V]) Remove(k K) bool {
	if isNilKey(k) || c.closed.Load() {
		return false
	}
	now := c.now()
	c.maybeSweep(now)

	e := c.store.loadAndDelete(k)
	if e == nil {
		return false
	}
	live := !e.peekExpired(now)
	c.evict(e, EvictRemoved)
	return live
}

func (c *cache[K, V]) RemoveByTag(tag string) bool {
	if c.closed.Load() {
		return false
	}
	c.maybeSweep(c.now())

	g := c.tags.loadAndDelete(tag)
	if g == nil {
		return false
	}
	for _, e := range g.expire() {
		c.evict(e, EvictTag)
	}
	return true
}

func (c *cache[K, V]) Len() int { return c.store.len() }

// Close marks the cache closed and takes the sweep guard for good, blocking
// until an in-flight sweep releases it.
func (c *cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.sweepSem <- struct{}{}
	return nil
}

// ---- write path ----

// write installs a new entry wrapping val and returns the entry that
// occupies k afterwards. With keepLive the new entry only displaces an
// absent or expired entry (get-or-add); otherwise it displaces any entry
// with a lower version (add).
//
// If a tag group expires while the entry is being linked, the whole write is
// retried with a fresh version. The retry replaces the withdrawn entry in one
// step, so callers that already read it keep sharing val.
func (c *cache[K, V]) write(k K, val *singleflight.Value[V], o EntryOptions, keepLive bool) *entry[K, V] {
	h := c.hash(k)
	tags := dedupe(o.Tags)
	var prev *entry[K, V]
	for {
		now := c.now()
		e := newEntry(k, val, c.versions.Next(h), o, now)

		winner := c.install(e, prev, now, keepLive)
		if prev != nil {
			prev.markExpired()
			c.detach(prev)
		}
		if winner != e || len(tags) == 0 {
			return winner
		}
		if c.link(e, tags) {
			return e
		}

		prev = e
		c.log.Debug("tag group expired while linking, retrying write",
			zap.Any("key", k), zap.Uint64("version", e.version))
	}
}

// install races e into the store and evicts whatever it displaced. An entry
// equal to withdrawn is always replaced and is not reported as evicted.
func (c *cache[K, V]) install(e, withdrawn *entry[K, V], now int64, keepLive bool) *entry[K, V] {
	winner, displaced := c.store.compute(e.key, e, func(cur *entry[K, V]) bool {
		switch {
		case cur == withdrawn:
			return true
		case keepLive:
			return cur.isExpired(now)
		default:
			return cur.version < e.version
		}
	})
	if displaced != nil && displaced != withdrawn {
		reason := EvictReplaced
		if displaced.peekExpired(now) {
			reason = EvictExpired
		}
		c.evict(displaced, reason)
	}
	return winner
}

// link joins e to every tag group, creating groups on first use. It returns
// false if a target group turned out to be expired.
func (c *cache[K, V]) link(e *entry[K, V], tags []string) bool {
	for _, tag := range tags {
		g := c.tags.loadOrStore(tag, func() *tagGroup[K, V] {
			return newTagGroup[K, V](tag)
		}, (*tagGroup[K, V]).isStale)
		if c.beforeLink != nil {
			c.beforeLink(tag)
		}

		if !g.add(e) {
			c.tags.compareAndDelete(tag, g)
			return false
		}
		e.addGroup(g)

		// Displaced or removed mid-link: whoever expired e may have missed
		// the group just joined.
		if e.expired.Load() {
			c.detach(e)
			return true
		}
	}
	return true
}

// ---- helpers ----

// evict takes e out of the store (only if it is still the installed
// instance), marks it expired and unlinks it from its tag groups.
// Metrics and OnEvict fire once per entry.
func (c *cache[K, V]) evict(e *entry[K, V], reason EvictReason) {
	c.store.compareAndDelete(e.key, e)
	first := e.markExpired()
	c.detach(e)
	if !first {
		return
	}
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(e.key, reason)
	}
}

func (c *cache[K, V]) detach(e *entry[K, V]) {
	for _, g := range e.takeGroups() {
		g.remove(e)
	}
}

func (c *cache[K, V]) force(ctx context.Context, e *entry[K, V]) (V, error) {
	v, err := e.val.Get(ctx)
	return v, factoryError(err)
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func validate[K comparable](k K, o EntryOptions) error {
	if isNilKey(k) {
		return errors.Wrap(ErrInvalidArgument, "nil key")
	}
	if o.Lifetime <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "lifetime must be positive, got %s", o.Lifetime)
	}
	return nil
}

func isNilKey[K comparable](k K) bool { return any(k) == nil }

func dedupe(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
