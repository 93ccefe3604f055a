package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOf_IsImmediate(t *testing.T) {
	t.Parallel()

	v := Of(7)
	require.True(t, v.Started())
	select {
	case <-v.Done():
	default:
		t.Fatal("immediate value must be published")
	}
	got, err := v.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

// Many goroutines forcing the same Value run fn exactly once and share the result.
func TestGet_RunsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	v := New(func(context.Context) (int, error) {
		n := calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return int(n) * 10, nil
	})

	const N = 64
	start := make(chan struct{})
	var g errgroup.Group
	results := make([]int, N)
	for i := 0; i < N; i++ {
		g.Go(func() error {
			<-start
			got, err := v.Get(context.Background())
			results[i] = got
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 10, r)
	}
}

func TestGet_FailureIsCached(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var calls atomic.Int64
	v := New(func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})

	for i := 0; i < 3; i++ {
		_, err := v.Get(context.Background())
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestGet_PanicBecomesError(t *testing.T) {
	t.Parallel()

	v := New(func(context.Context) (int, error) { panic("kaboom") })

	_, err := v.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// Published: later callers see the same failure without re-running.
	_, err2 := v.Wait(context.Background())
	require.Error(t, err2)
}

func TestStart_RunsInBackgroundIgnoringCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	v := New(func(ctx context.Context) (int, error) {
		<-release
		return 1, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	v.Start(ctx)
	v.Start(ctx) // second start is a no-op
	cancel()

	// The waiter honours its own cancelled context.
	_, err := v.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	got, err := v.Wait(context.Background())
	require.NoError(t, err, "run context must not inherit cancellation")
	assert.Equal(t, 1, got)
}

func TestGet_WaiterRespectsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	v := New(func(context.Context) (int, error) {
		<-release
		return 5, nil
	})
	v.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := v.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err := v.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 5, got)
	}()
	wg.Wait()
}

func TestPeek_NeverRunsOrWaits(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	boom := errors.New("boom")
	v := New(func(context.Context) (int, error) {
		<-release
		return 0, boom
	})

	_, ok, err := v.Peek()
	require.False(t, ok)
	require.NoError(t, err)
	assert.False(t, v.Started(), "Peek must not claim the run")

	v.Start(context.Background())
	_, ok, _ = v.Peek()
	assert.False(t, ok, "in-flight value is not published yet")

	close(release)
	<-v.Done()
	_, ok, err = v.Peek()
	require.True(t, ok)
	require.ErrorIs(t, err, boom)

	got, ok, err := Of(3).Peek()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}
