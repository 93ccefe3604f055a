// Package version allocates per-key write versions from a fixed bank of
// sharded atomic counters.
//
// Versions are only ever compared between two writes to the same key, so
// unrelated keys may share a counter: sharing coarsens contention, it never
// reorders writes.
package version

import "github.com/IvanBrykalov/tagcache/internal/util"

// Buckets is the number of independent counters in a Bank. It must be a
// power of two: bucket selection masks the hash with Buckets-1, so every
// index the mask can produce is a valid array index.
const Buckets = 256

const mask = Buckets - 1

// Bank is a sharded monotonic counter bank. The zero value is ready to use.
// Counters sit on separate cache lines so concurrent writers to different
// buckets do not contend.
type Bank struct {
	counters [Buckets]util.PaddedAtomicUint64
}

// Next atomically increments and returns the counter selected by hash.
// The first version handed out by any bucket is 1.
func (b *Bank) Next(hash uint64) uint64 {
	return b.counters[Bucket(hash)].Add(1)
}

// Bucket returns the counter index for hash, always in [0, Buckets).
func Bucket(hash uint64) int {
	return int(hash & mask)
}
