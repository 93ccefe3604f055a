// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/tagcache/cache"
	pmet "github.com/IvanBrykalov/tagcache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		shards   = flag.Int("shards", 0, "number of shards (0=auto)")
		scan     = flag.Duration("scan", time.Second, "sweep scan interval")
		lifetime = flag.Duration("ttl", 5*time.Second, "entry lifetime")
		sliding  = flag.Bool("sliding", false, "use sliding expiration")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		loadPct  = flag.Int("getoradd", 10, "share of writes done through GetOrAdd [0..100]")
		invPct   = flag.Float64("invalidate", 0.1, "percentage of operations that are RemoveByTag")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		tags    = flag.Int("tags", 64, "number of distinct tags")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 100_000, "preload entries")

		debug       = flag.Bool("debug", false, "enable debug logging (sweep summaries)")
		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	logger := zap.NewNop()
	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "tagcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	c, err := cache.New[string, string](cache.Options[string, string]{
		ScanInterval: *scan,
		Shards:       *shards,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	tagCount := *tags
	if tagCount <= 0 {
		tagCount = 1
	}
	tagOf := func(i uint64) string { return "t:" + strconv.FormatUint(i%uint64(tagCount), 10) }
	opts := func(i uint64) cache.EntryOptions {
		return cache.EntryOptions{Lifetime: *lifetime, Sliding: *sliding, Tags: []string{tagOf(i)}}
	}

	// ---- Preload to get a realistic hit-rate ----
	for i := 0; i < *preload; i++ {
		k := "k:" + strconv.Itoa(i)
		if err := c.Add(k, "v"+strconv.Itoa(i), opts(uint64(i))); err != nil {
			log.Fatalf("preload: %v", err)
		}
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	loadPctVal := *loadPct
	invPerMillion := int(*invPct * 10_000)
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, invalidations, loads, total atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(w)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for gctx.Err() == nil {
				total.Add(1)
				n := localZipf.Uint64()
				k := "k:" + strconv.FormatUint(n, 10)

				switch {
				case localR.Intn(1_000_000) < invPerMillion:
					invalidations.Add(1)
					c.RemoveByTag(tagOf(n))
				case int(localR.Int31n(100)) < readPctVal:
					reads.Add(1)
					if _, ok, _ := c.TryGet(k); ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
				case int(localR.Int31n(100)) < loadPctVal:
					loads.Add(1)
					if _, err := c.GetOrAdd(k, func() (string, error) {
						return "v" + strconv.FormatUint(n, 10), nil
					}, opts(n)); err != nil {
						return err
					}
				default:
					writes.Add(1)
					if err := c.Add(k, "v"+strconv.Itoa(localR.Int()), opts(n)); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("workload: %v", err)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	readsN := reads.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hits.Load()) / float64(readsN) * 100
	}

	fmt.Printf("shards=%d workers=%d keys=%d tags=%d ttl=%v sliding=%v dur=%v seed=%d\n",
		*shards, workersN, *keys, tagCount, *lifetime, *sliding, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  getoradd=%d  invalidations=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load(), loads.Load(), invalidations.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hits.Load(), misses.Load(), hitRate)
	fmt.Printf("Len()=%d\n", c.Len())
}
