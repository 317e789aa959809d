// Package parallel fans work out over a bounded set of goroutines.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether to run tasks concurrently at all.
	NumWorkers int  // Maximum number of tasks running at once.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
	}
}

// Run calls f(ctx, i) for i in [0, n) and returns the first error.
//
// When parallelism is enabled at most cfg.NumWorkers calls run at once and
// ctx passed to f is cancelled as soon as one call fails. Otherwise the
// calls run sequentially and stop at the first error.
func Run(ctx context.Context, n int, f func(ctx context.Context, i int) error, cfg Config) error {
	if !cfg.Enabled || cfg.NumWorkers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return f(ctx, i)
		})
	}
	return g.Wait()
}
