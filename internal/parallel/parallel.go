// Package parallel splits data-parallel kernel loops across goroutines.
package parallel

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/kiln/internal/envconfig"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig reads the worker count from KILN_NUM_THREADS and honours
// KILN_NO_PARALLEL.
func DefaultConfig() Config {
	n := int(envconfig.NumThreads())
	return Config{
		Enabled:      n > 1 && !envconfig.NoParallel(),
		NumWorkers:   max(n, 1),
		MinChunkSize: 1024,
	}
}

// Sequential is a Config that never spawns goroutines.
func Sequential() Config { return Config{NumWorkers: 1} }

// ForRange calls f on disjoint [lo, hi) chunks covering [0, n).
// It runs f once over the whole range when parallelism is disabled or n
// is smaller than one chunk.
func ForRange(n int, f func(lo, hi int), cfg Config) {
	if n <= 0 {
		return
	}
	if !cfg.split(n) {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	chunk := cfg.chunkSize(n)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}

// ForRangeErr is ForRange for bodies that can fail. At most NumWorkers
// chunks run at once; once a chunk fails the chunks not yet started are
// skipped and the first error is returned.
func ForRangeErr(n int, f func(lo, hi int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	if !cfg.split(n) {
		return f(0, n)
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(cfg.NumWorkers)
	chunk := cfg.chunkSize(n)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return f(lo, hi)
		})
	}
	return g.Wait()
}

func (cfg Config) split(n int) bool {
	return cfg.Enabled && cfg.NumWorkers > 1 && n >= 2*cfg.MinChunkSize
}

func (cfg Config) chunkSize(n int) int {
	return max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
}

// For executes f(i) for i in [0, n).
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	}, cfg)
}

// ForBatch runs f once per batch index. Batches are coarse work items, so
// every batch may get its own goroutine.
func ForBatch(batch int, f func(b int), cfg Config) {
	cfg.MinChunkSize = 1
	For(batch, f, cfg)
}
