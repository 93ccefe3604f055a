// Package cache provides a generic, concurrent in-memory cache with per-entry
// expiration (absolute or sliding), tag-based group invalidation and
// single-flight value materialization.
//
// Design
//
//   - Storage: entries live in a sharded map (power-of-two shards, one
//     RWMutex each). Replacing an entry is decided under the shard lock by
//     comparing write versions, so a delayed older write never overwrites a
//     newer one.
//
//   - Versions: every write draws a version from a bank of 256 padded atomic
//     counters selected by key hash. Versions only order writes to the same
//     key; no wall clock is involved.
//
//   - Tags: a second sharded map indexes tag -> group of (key, entry).
//     A write that finds one of its groups already invalidated withdraws
//     itself and retries with a fresh version, so a concurrent RemoveByTag
//     never leaves a tagged entry behind.
//
//   - Expiration: absolute entries expire at creation+Lifetime; sliding
//     entries push their deadline on every successful read. Expired entries
//     are treated as absent on read and evicted by background sweeps.
//
//   - Sweeps: there is no timer goroutine. Every call checks whether
//     ScanInterval has elapsed and, if no sweep is running, starts one in
//     its own goroutine. The sweep guard is released by a deferred call, so
//     a panic inside a sweep cannot disable cleanup.
//
//   - GetOrAdd: the value is wrapped in a deferred computation and raced
//     into the store like any other write. Only the installed entry is ever
//     forced, and forcing is memoized, so concurrent callers run the
//     factory once and share its result or its error.
//
// Basic usage
//
//	c, err := cache.New[string, int](cache.Options[string, int]{})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Add("a", 1, cache.EntryOptions{Lifetime: 10 * time.Second, Tags: []string{"g"}})
//	v, ok, _ := c.TryGet("a") // 1, true
//	c.RemoveByTag("g")
//	_, ok, _ = c.TryGet("a") // ok == false
//
// Single-flight loading
//
//	v, err := c.GetOrAdd("user:42", func() (int, error) {
//	    return loadFromDB(42)
//	}, cache.EntryOptions{Lifetime: time.Minute, Sliding: true})
//
// Exporting metrics
//
//	m := prom.New(nil, "tagcache", "demo", nil) // implements Metrics
//	c, _ := cache.New[string, []byte](cache.Options[string, []byte]{Metrics: m})
package cache
