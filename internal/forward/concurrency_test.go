package forward

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/forwardad/internal/tensor"
)

// assertConsistent checks that g has an entry for exactly the live levels
// that list it as a member.
func assertConsistent(t *testing.T, reg *Registry, g *Grad) {
	t.Helper()

	var members []uint64
	for _, idx := range reg.Active() {
		lvl, ok := reg.TryGet(idx)
		if ok && lvl.Has(g) {
			members = append(members, idx)
		}
	}
	if members == nil {
		members = []uint64{}
	}
	if diff := cmp.Diff(members, g.Levels()); diff != "" {
		t.Errorf("grad entries differ from level membership (-members +entries):\n%s", diff)
	}
}

func TestConcurrentSetResetRelease(t *testing.T) {
	const (
		workers    = 8
		iterations = 2000
	)

	reg := NewRegistry()
	g := NewGrad(reg)

	levels := make([]uint64, workers)
	for i := range levels {
		levels[i] = reg.NextIndex()
	}

	values := make([]*tensor.RawTensor, workers)
	for w := range values {
		values[w] = newValue(t, float32(w))
	}

	// lastSet[w] is true when worker w's last successful call was a Set.
	lastSet := make([]bool, workers)

	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w)))
			v, idx := values[w], levels[w]
			for i := 0; i < iterations; i++ {
				var err error
				set := rng.Intn(2) == 0
				if set {
					err = g.Set(v, idx)
				} else {
					err = g.Reset(idx)
				}
				switch {
				case err == nil:
					lastSet[w] = set
				case errors.Is(err, ErrUnknownLevel):
					// Released underneath us.
				default:
					return err
				}
			}
			return nil
		})
	}

	// Release every other level while the workers run.
	eg.Go(func() error {
		for i := 0; i < workers; i += 2 {
			if err := reg.Release(levels[i]); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, eg.Wait())

	var want []uint64
	for w, idx := range levels {
		if w%2 == 0 {
			assert.False(t, g.Contains(idx), "released level %d still has an entry", idx)
			continue
		}
		if lastSet[w] {
			want = append(want, idx)
		}
	}
	if want == nil {
		want = []uint64{}
	}
	if diff := cmp.Diff(want, g.Levels()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	assertConsistent(t, reg, g)
}

func TestReleaseRacingSet(t *testing.T) {
	for round := 0; round < 50; round++ {
		reg := NewRegistry()
		idx := reg.NextIndex()

		grads := make([]*Grad, 16)
		values := make([]*tensor.RawTensor, len(grads))
		for i := range grads {
			grads[i] = NewGrad(reg)
			values[i] = newValue(t, float32(i))
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i, g := range grads {
			i, g := i, g
			wg.Add(1)
			go func() {
				defer wg.Done()
				v := values[i]
				<-start
				for {
					if err := g.Set(v, idx); err != nil {
						return
					}
				}
			}()
		}

		close(start)
		require.NoError(t, reg.Release(idx))

		// Nothing set before Release returned may survive it.
		for _, g := range grads {
			assert.False(t, g.Contains(idx), "round %d: entry survived release", round)
		}

		wg.Wait()
		for _, g := range grads {
			assert.True(t, g.Empty(), "round %d: late set resurrected an entry", round)
		}
	}
}

func TestClearRacingRelease(t *testing.T) {
	reg := NewRegistry()

	levels := make([]uint64, 4)
	for i := range levels {
		levels[i] = reg.NextIndex()
	}

	grads := make([]*Grad, 64)
	for i := range grads {
		grads[i] = NewGrad(reg)
		for _, idx := range levels {
			require.NoError(t, grads[i].Set(newValue(t, 1), idx))
		}
	}

	var eg errgroup.Group
	for _, idx := range levels {
		idx := idx
		eg.Go(func() error {
			return reg.Release(idx)
		})
	}
	for _, g := range grads {
		g := g
		eg.Go(func() error {
			g.Clear()
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Empty(t, reg.Active())
	for _, g := range grads {
		assert.True(t, g.Empty())
	}
}

func TestRecycleUnderLoad(t *testing.T) {
	reg := NewRegistry()
	g := NewGrad(reg)
	v := newValue(t, 1)

	var stop atomic.Bool
	var eg errgroup.Group

	// Keep re-entering and releasing level indices.
	eg.Go(func() error {
		defer stop.Store(true)
		for i := 0; i < 500; i++ {
			idx := reg.NextIndex()
			if err := reg.Release(idx); err != nil {
				return err
			}
		}
		return nil
	})

	for i := 0; i < 4; i++ {
		eg.Go(func() error {
			for !stop.Load() {
				for _, idx := range reg.Active() {
					if err := g.Set(v, idx); err != nil && !errors.Is(err, ErrUnknownLevel) {
						return err
					}
				}
			}
			return nil
		})
	}

	require.NoError(t, eg.Wait())
	assert.Empty(t, reg.Active())
	assert.True(t, g.Empty(), "entries left after every level was released: %v", g.Levels())
}

func TestConcurrentReaders(t *testing.T) {
	reg := NewRegistry()
	a := reg.NextIndex()
	g := NewGrad(reg)
	v := newValue(t, 3)
	require.NoError(t, g.Set(v, a))

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			for j := 0; j < 1000; j++ {
				if g.Value(a) != v || !g.Contains(a) || g.Empty() {
					return errors.New("reader saw inconsistent state")
				}
				if g.Value(a+1) != UndefinedGrad() {
					return errors.New("missing entry did not return the undefined grad")
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}
