// Package singleflight provides a memoized value that is either known up
// front or computed at most once on first demand.
package singleflight

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

const (
	statePending uint32 = iota
	stateRunning
	stateDone
)

// Value holds either an immediate value or a deferred computation.
// The computation runs at most once no matter how many goroutines force it;
// every caller observes the single published result or error.
//
// Concurrency notes:
//   - The caller that moves the state pending -> running owns the run.
//   - Publishing (val, err) happens-before close(done), so reads after
//     <-done observe the final values.
//   - Cancelling ctx in a waiter unblocks only that waiter; the run is
//     never cancelled on its behalf.
type Value[V any] struct {
	state atomic.Uint32
	fn    func(context.Context) (V, error)
	done  chan struct{}
	val   V
	err   error
}

// Of returns an already-computed Value.
func Of[V any](v V) *Value[V] {
	x := &Value[V]{done: make(chan struct{}), val: v}
	x.state.Store(stateDone)
	close(x.done)
	return x
}

// New returns a Value whose fn runs on first Get or Start.
func New[V any](fn func(context.Context) (V, error)) *Value[V] {
	return &Value[V]{fn: fn, done: make(chan struct{})}
}

// Get forces the value. If no run has started yet the caller runs fn inline;
// otherwise it waits for the in-flight run, respecting ctx.
func (v *Value[V]) Get(ctx context.Context) (V, error) {
	if v.claim() {
		v.run(context.WithoutCancel(ctx))
		return v.val, v.err
	}
	return v.Wait(ctx)
}

// Start launches fn in its own goroutine if no run has started yet.
// The run's context keeps ctx's values but not its cancellation.
func (v *Value[V]) Start(ctx context.Context) {
	if v.claim() {
		go v.run(context.WithoutCancel(ctx))
	}
}

// Wait blocks until the value is published or ctx is done.
// It must only be used once a run has been started via Get or Start.
func (v *Value[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-v.done:
		return v.val, v.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the published result without running fn or waiting for it.
// ok is false while the value is pending or still being computed.
func (v *Value[V]) Peek() (val V, ok bool, err error) {
	select {
	case <-v.done:
		return v.val, true, v.err
	default:
		return val, false, nil
	}
}

// Done is closed once the value is published.
func (v *Value[V]) Done() <-chan struct{} { return v.done }

// Started reports whether a run was claimed (or the value was immediate).
func (v *Value[V]) Started() bool { return v.state.Load() != statePending }

func (v *Value[V]) claim() bool {
	return v.state.CompareAndSwap(statePending, stateRunning)
}

func (v *Value[V]) run(ctx context.Context) {
	defer close(v.done)
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v.val = zero
			v.err = errors.Newf("singleflight: value function panicked: %v", r)
		}
		v.fn = nil
		v.state.Store(stateDone)
	}()
	v.val, v.err = v.fn(ctx)
}
