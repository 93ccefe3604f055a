package cache

import (
	"time"

	"go.uber.org/zap"
)

// DefaultScanInterval is the sweep debounce interval used when
// Options.ScanInterval is zero.
const DefaultScanInterval = time.Minute

// EvictReason explains why an entry left the cache.
type EvictReason int

const (
	// EvictExpired: the entry's lifetime elapsed (found on read or by a sweep).
	EvictExpired EvictReason = iota
	// EvictReplaced: a newer write to the same key displaced the entry.
	EvictReplaced
	// EvictRemoved: explicit Remove.
	EvictRemoved
	// EvictTag: RemoveByTag, or a sweep dropping the entry's tag group.
	EvictTag
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictReplaced:
		return "replaced"
	case EvictRemoved:
		return "removed"
	case EvictTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Size is reported after every sweep.
	Size(entries, groups int)
	Sweep(took time.Duration)
}

// Clock provides time in UnixNano; useful for deterministic tests.
// Implementations must be safe for concurrent use: sweeps read it from
// their own goroutine.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Zero values are safe; defaults are applied
// in New():
//   - ScanInterval == 0 => DefaultScanInterval
//   - Shards <= 0       => auto (rounded up to power of two)
//   - nil Hash          => built-in hashing consistent with ==
//   - nil Metrics       => NoopMetrics
//   - nil Logger        => zap.NewNop()
type Options[K comparable, V any] struct {
	// ScanInterval is the minimum time between two background sweeps.
	// Negative values are rejected by New.
	ScanInterval time.Duration

	// Shards defines the number of shards of the primary store and of the
	// tag index.
	Shards int

	// Hash maps keys to shards and version buckets. Equal keys must hash
	// equally.
	Hash func(K) uint64

	// OnEvict is called after an entry leaves the cache, outside any lock.
	OnEvict func(k K, reason EvictReason)
	Metrics Metrics
	Logger  *zap.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
