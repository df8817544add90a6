package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/krisalay/omnifocus-mcp-cache"
	"github.com/krisalay/omnifocus-mcp-cache/backend"
	"github.com/krisalay/omnifocus-mcp-cache/engine"
	"github.com/krisalay/omnifocus-mcp-cache/expiration"
	"github.com/krisalay/omnifocus-mcp-cache/types"
	"github.com/spf13/cobra"
)

// ================= BENCHMARK =================

type params struct {
	backend     string
	keys        int
	goroutines  int
	opsPerG     int
	writeEvery  int
	loadLatency time.Duration
}

func main() {
	var p params

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Load-test the category cache against a slow fake automation bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVar(&p.backend, "backend", "memory", "memory, ristretto or gcache")
	cmd.Flags().IntVar(&p.keys, "keys", 1000, "distinct keys per category")
	cmd.Flags().IntVar(&p.goroutines, "goroutines", 200, "concurrent readers")
	cmd.Flags().IntVar(&p.opsPerG, "ops", 5000, "operations per goroutine")
	cmd.Flags().IntVar(&p.writeEvery, "write-every", 1000, "one task write (invalidation) every N operations, 0 for none")
	cmd.Flags().DurationVar(&p.loadLatency, "load-latency", 2*time.Millisecond, "simulated automation call latency")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p params) error {
	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Backend      :", p.backend)
	fmt.Println("Keys/Category:", p.keys)
	fmt.Println("Goroutines   :", p.goroutines)
	fmt.Println("Ops/Goroutine:", p.opsPerG)
	fmt.Println("Write Every  :", p.writeEvery)
	fmt.Println("Load Latency :", p.loadLatency)
	fmt.Println("---------------------------------")

	stores, closer, err := backend.NewFactory(backend.Config{Kind: backend.Kind(p.backend), Eviction: "LRU"}, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	counters := cache.NewCounters()
	c, err := cache.New(cache.Options{Stores: stores}, engine.NewCacheEngine(expiration.ExpireAfterWrite{}, counters, nil, nil))
	if err != nil {
		return err
	}
	defer c.Close()

	var loads atomic.Int64
	load := func(v int) types.LoadFunc {
		return func(context.Context) (any, error) {
			loads.Add(1)
			time.Sleep(p.loadLatency)
			return v, nil
		}
	}

	cats := types.BuiltinCategories()
	var writes atomic.Int64

	fmt.Println("Running concurrency benchmark...")
	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(p.goroutines)
	for i := 0; i < p.goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < p.opsPerG; j++ {
				n := id*p.opsPerG + j
				if p.writeEvery > 0 && n%p.writeEvery == 0 {
					// a task write drops the same categories the server drops
					c.Invalidate(ctx, types.CategoryTasks)
					c.Invalidate(ctx, types.CategoryAnalytics)
					c.Invalidate(ctx, types.CategoryToday)
					writes.Add(1)
					continue
				}
				cat := cats[n%len(cats)]
				k := j % p.keys
				if _, _, err := c.GetOrLoad(ctx, cat, fmt.Sprintf("key-%d", k), load(k)); err != nil {
					fmt.Fprintln(os.Stderr, "load:", err)
				}
			}
		}(i)
	}
	wg.Wait()

	duration := time.Since(start)
	totalOps := p.goroutines * p.opsPerG

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Printf("Loads            : %d\n", loads.Load())
	fmt.Printf("Task Writes      : %d\n", writes.Load())
	fmt.Println("---------------------------------")
	stats := counters.Snapshot()
	for _, cat := range cats {
		s := stats.Categories[cat]
		fmt.Printf("%-10s hits=%-8d misses=%-8d invalidations=%-6d hit ratio=%.3f\n",
			cat, s.Hits, s.Misses, s.Invalidations, s.HitRatio)
	}
	fmt.Println("=========================================")
	return nil
}
