package cache

import (
	"time"

	"go.uber.org/zap"
)

// maybeSweep schedules a background sweep when at least ScanInterval has
// passed since the last one and no sweep is running. It never blocks.
func (c *cache[K, V]) maybeSweep(now int64) {
	if now-c.lastScan.Load() < c.scanInterval {
		return
	}
	if !c.tryAcquireSweep() {
		return
	}
	c.lastScan.Store(now)
	go c.runSweep(now)
}

func (c *cache[K, V]) tryAcquireSweep() bool {
	select {
	case c.sweepSem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *cache[K, V]) releaseSweep() { <-c.sweepSem }

// sweepHeld reports whether a sweep (or Close) holds the guard.
func (c *cache[K, V]) sweepHeld() bool { return len(c.sweepSem) == 1 }

// runSweep owns the sweep guard; it is released on every exit path,
// including a panic escaping a user callback.
func (c *cache[K, V]) runSweep(now int64) {
	defer c.releaseSweep()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("sweep panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	c.sweep(now)
}

// sweep evicts entries expired at now, then drops tag groups that are
// expired or left without live members. Sliding windows are not extended:
// a sweep is not an access.
func (c *cache[K, V]) sweep(now int64) {
	start := time.Now()
	var entries, groups int

	c.store.snapshot(func(_ K, e *entry[K, V]) {
		if e.peekExpired(now) {
			c.evict(e, EvictExpired)
			entries++
		}
	})

	c.tags.snapshot(func(tag string, g *tagGroup[K, V]) {
		if !g.isStale() && !g.prune() {
			return
		}
		c.tags.compareAndDelete(tag, g)
		for _, e := range g.expire() {
			c.evict(e, EvictTag)
		}
		groups++
	})

	took := time.Since(start)
	c.opt.Metrics.Size(c.store.len(), c.tags.len())
	c.opt.Metrics.Sweep(took)
	c.log.Debug("sweep finished",
		zap.Int("expired_entries", entries),
		zap.Int("dropped_groups", groups),
		zap.Duration("took", took))
}
