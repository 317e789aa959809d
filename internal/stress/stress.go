// Package stress hammers a single forward gradient holder from many
// goroutines while levels are released and re-entered underneath it, then
// checks that holder entries and level membership still agree.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/born-ml/forwardad/internal/forward"
	"github.com/born-ml/forwardad/internal/parallel"
	"github.com/born-ml/forwardad/internal/tensor"
)

// Options configures a run.
type Options struct {
	Workers    int   // Goroutines calling Set/Reset on the shared holder.
	Iterations int   // Operations per worker, and release/enter cycles of the churner.
	Levels     int   // Levels kept live during the run.
	Seed       int64 // Base seed; worker i uses Seed+i.

	Parallel parallel.Config
}

// DefaultOptions returns options sized for a quick run.
func DefaultOptions() Options {
	cfg := parallel.DefaultConfig()
	cfg.Enabled = true
	return Options{
		Workers:    8,
		Iterations: 10000,
		Levels:     forward.ExpectedMaxLevel,
		Seed:       1,
		Parallel:   cfg,
	}
}

// Report summarises a run.
type Report struct {
	Sets       int64 // Successful Set calls
	Resets     int64 // Successful Reset calls
	Rejected   int64 // Set/Reset calls refused with ErrUnknownLevel
	Releases   int64 // Levels released by the churner
	Live       []uint64
	Entries    []uint64
	Violations []string
	Elapsed    time.Duration
}

// OK reports whether no invariant was violated.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) violation(format string, args ...any) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, args...))
}

// Run performs one stress run.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Workers < 1 || opts.Iterations < 1 || opts.Levels < 1 {
		return nil, fmt.Errorf("stress: workers, iterations and levels must be positive: %+v", opts)
	}
	// The churner needs its own slot or it could wait for every worker.
	if opts.Parallel.Enabled && opts.Parallel.NumWorkers <= opts.Workers {
		opts.Parallel.NumWorkers = opts.Workers + 1
	}

	reg := forward.NewRegistry()
	g := forward.NewGrad(reg)
	for i := 0; i < opts.Levels; i++ {
		reg.NextIndex()
	}

	values := make([]*tensor.RawTensor, opts.Workers)
	for i := range values {
		v, err := tensor.FromFloat32([]float32{float32(i)}, tensor.Shape{1})
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	var sets, resets, rejected, releases atomic.Int64
	start := time.Now()

	churn := func(ctx context.Context) error {
		rng := rand.New(rand.NewSource(opts.Seed - 1))
		for i := 0; i < opts.Iterations; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			live := reg.Active()
			if len(live) == 0 {
				reg.NextIndex()
				continue
			}
			if err := reg.Release(live[rng.Intn(len(live))]); err != nil {
				return err
			}
			releases.Add(1)
			reg.NextIndex()
		}
		return nil
	}

	work := func(ctx context.Context, w int) error {
		rng := rand.New(rand.NewSource(opts.Seed + int64(w)))
		v := values[w]
		for i := 0; i < opts.Iterations; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			idx := uint64(rng.Intn(opts.Levels))

			var err error
			set := rng.Intn(2) == 0
			if set {
				err = g.Set(v, idx)
			} else {
				err = g.Reset(idx)
			}

			switch {
			case err == nil && set:
				sets.Add(1)
			case err == nil:
				resets.Add(1)
			case errors.Is(err, forward.ErrUnknownLevel):
				rejected.Add(1)
			default:
				return err
			}
		}
		return nil
	}

	err := parallel.Run(ctx, opts.Workers+1, func(ctx context.Context, i int) error {
		if i == opts.Workers {
			return churn(ctx)
		}
		return work(ctx, i)
	}, opts.Parallel)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Sets:     sets.Load(),
		Resets:   resets.Load(),
		Rejected: rejected.Load(),
		Releases: releases.Load(),
		Live:     reg.Active(),
		Entries:  g.Levels(),
	}
	check(report, reg, g)
	report.Elapsed = time.Since(start)

	slog.Debug("stress run finished",
		"sets", report.Sets,
		"resets", report.Resets,
		"rejected", report.Rejected,
		"releases", report.Releases,
		"violations", len(report.Violations),
		"elapsed", report.Elapsed)

	return report, nil
}

// check verifies that g's entries match level membership, then releases
// every level and verifies nothing is left behind.
func check(report *Report, reg *forward.Registry, g *forward.Grad) {
	live := make(map[uint64]*forward.Level, len(report.Live))
	for _, idx := range report.Live {
		lvl, err := reg.Get(idx)
		if err != nil {
			report.violation("live level %d not found: %v", idx, err)
			continue
		}
		live[idx] = lvl
		if lvl.Has(g) != g.Contains(idx) {
			report.violation("level %d: member=%v entry=%v", idx, lvl.Has(g), g.Contains(idx))
		}
	}
	for _, idx := range report.Entries {
		if _, ok := live[idx]; !ok {
			report.violation("stale entry for released level %d", idx)
		}
	}

	for idx, lvl := range live {
		if err := reg.Release(idx); err != nil {
			report.violation("release %d: %v", idx, err)
			continue
		}
		if n := lvl.Len(); n != 0 {
			report.violation("level %d kept %d members after release", idx, n)
		}
	}
	if !g.Empty() {
		report.violation("entries left after releasing every level: %v", g.Levels())
	}

	g.Clear()
}
