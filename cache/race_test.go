package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Add/TryGet/GetOrAdd/Remove/RemoveByTag on
// random keys with frequent sweeps. Should pass under `-race` without
// detector reports.
func TestRace_Basic(t *testing.T) {
	c := newTestCache(t, Options[string, []byte]{
		ScanInterval: 5 * time.Millisecond,
		Shards:       32,
	})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 10_000
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				tag := "t:" + strconv.Itoa(r.Intn(16))
				o := EntryOptions{
					Lifetime: time.Duration(10+r.Intn(20)) * time.Millisecond,
					Sliding:  r.Intn(2) == 0,
					Tags:     []string{tag},
				}
				switch r.Intn(100) {
				case 0: // ~1% RemoveByTag
					c.RemoveByTag(tag)
				case 1, 2, 3, 4: // ~4% Remove
					c.Remove(k)
				case 5, 6, 7, 8, 9: // ~5% GetOrAdd
					_, _ = c.GetOrAdd(k, func() ([]byte, error) { return []byte("y"), nil }, o)
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% Add
					_ = c.Add(k, []byte("x"), o)
				default: // ~80% TryGet
					_, _, _ = c.TryGet(k)
				}
			}
		}(w)
	}
	wg.Wait()
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	checkIndex(t, c)
}

// One hundred goroutines call GetOrAdd on the same key concurrently.
// The factory must run exactly once.
func TestRace_GetOrAdd(t *testing.T) {
	var calls int64

	c := newTestCache(t, Options[string, string]{})
	factory := func() (string, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v", nil
	}

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrAdd(key, factory, EntryOptions{Lifetime: time.Minute})
			if err != nil {
				t.Errorf("GetOrAdd error: %v", err)
				return
			}
			if v != "v" {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("factory should run exactly once, got %d", got)
	}
}

// Async callers share one computation too.
func TestRace_GetOrAddAsync(t *testing.T) {
	var calls int64

	c := newTestCache(t, Options[string, int]{})
	factory := func(context.Context) (int, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond)
		return 42, nil
	}

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			f, err := c.GetOrAddAsync(context.Background(), "k", factory, EntryOptions{Lifetime: time.Minute})
			if err != nil {
				t.Errorf("GetOrAddAsync error: %v", err)
				return
			}
			if v, err := f.Wait(context.Background()); err != nil || v != 42 {
				t.Errorf("Wait: v=%d err=%v", v, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("factory should run exactly once, got %d", got)
	}
}
