package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/tagcache/internal/singleflight"
)

// Cache is an in-memory key/value cache with per-entry expiration, tag-based
// group invalidation and single-flight value materialization.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[K comparable, V any] interface {
	// TryGet returns the value for k and a presence flag. Missing and expired
	// entries are absent, and so is a value whose factory has not finished:
	// TryGet never runs a factory or waits for one. If the factory failed,
	// the cached failure is returned with ok == false.
	TryGet(k K) (v V, ok bool, err error)

	// Add stores v under k, displacing any older write to k.
	Add(k K, v V, o EntryOptions) error

	// GetOrAdd returns the live value for k, or installs one produced by
	// factory. Concurrent callers for the same absent key share one entry,
	// so factory runs exactly once; its failure is cached like a value.
	GetOrAdd(k K, factory func() (V, error), o EntryOptions) (V, error)

	// GetOrAddAsync is GetOrAdd with the factory running in its own
	// goroutine. The factory's context carries ctx's values but is never
	// cancelled by the cache.
	GetOrAddAsync(ctx context.Context, k K, factory func(context.Context) (V, error), o EntryOptions) (*Future[V], error)

	// Remove deletes k if present and reports whether a live entry was removed.
	// Removing an absent key is a no-op.
	Remove(k K) bool

	// RemoveByTag deletes every entry tagged with tag and reports whether
	// the tag was known.
	RemoveByTag(tag string) bool

	// Len returns the number of resident entries, including expired entries
	// not yet swept.
	Len() int

	// Close stops background sweeps and waits for a running one to finish.
	// Afterwards writes fail with ErrClosed and reads miss.
	Close() error
}

// EntryOptions is the per-write expiration policy and tag set.
type EntryOptions struct {
	// Lifetime must be positive.
	Lifetime time.Duration
	// Sliding resets the lifetime window on every successful read.
	Sliding bool
	// Tags lists the groups this entry joins; duplicates are ignored.
	Tags []string
}

// Future is the pending result of GetOrAddAsync.
type Future[V any] struct {
	v *singleflight.Value[V]
}

// Wait blocks until the value is ready or ctx is done. Abandoning a wait does
// not cancel the computation; other waiters still receive the result.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.v.Done():
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
	v, err := f.v.Wait(context.Background())
	return v, factoryError(err)
}

// Done is closed once the value (or failure) is available.
func (f *Future[V]) Done() <-chan struct{} { return f.v.Done() }
