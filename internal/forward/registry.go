package forward

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
)

// ExpectedMaxLevel is the number of levels the data structures are sized for.
// The level count is the order of the derivative being computed and anything
// beyond second order is rare; more levels still work through normal growth.
const ExpectedMaxLevel = 2

// Registry is the table of live forward AD levels.
//
// All methods are safe for concurrent use. The zero value is not usable;
// create one with NewRegistry or use DefaultRegistry.
type Registry struct {
	mu     sync.Mutex
	levels map[uint64]*Level
	free   *binaryheap.Heap[uint64] // released indices whose drain has finished
	next   uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		levels: make(map[uint64]*Level, ExpectedMaxLevel),
		free:   binaryheap.New[uint64](),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, created empty on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NextIndex enters a new level and returns its index.
//
// The smallest released index is reused first, so strictly nested usage
// always sees indices equal to the nesting depth.
func (r *Registry) NextIndex() uint64 {
	r.mu.Lock()
	idx, ok := r.free.Pop()
	if !ok {
		idx = r.next
		r.next++
	}
	r.levels[idx] = newLevel(idx)
	live := len(r.levels)
	r.mu.Unlock()

	slog.Debug("forward AD level entered", "level", idx, "live", live)
	return idx
}

// Release exits the level at idx.
//
// Lookups of idx fail as soon as Release starts. Before it returns, every
// Grad registered with the level has lost its entry for idx; only then does
// idx become available to NextIndex again.
func (r *Registry) Release(idx uint64) error {
	r.mu.Lock()
	lvl, ok := r.levels[idx]
	if ok {
		delete(r.levels, idx)
	}
	r.mu.Unlock()

	if !ok {
		return unknownLevel("release", idx)
	}

	n := lvl.drain()

	r.mu.Lock()
	r.free.Push(idx)
	r.mu.Unlock()

	slog.Debug("forward AD level released", "level", idx, "grads", n)
	return nil
}

// Get returns the live level at idx. An unknown index is a caller bug and
// is reported as ErrUnknownLevel.
func (r *Registry) Get(idx uint64) (*Level, error) {
	lvl, ok := r.TryGet(idx)
	if !ok {
		return nil, unknownLevel("get", idx)
	}
	return lvl, nil
}

// TryGet returns the live level at idx, or false if there is none.
// Teardown paths that may race with Release use it instead of Get.
func (r *Registry) TryGet(idx uint64) (*Level, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lvl, ok := r.levels[idx]
	return lvl, ok
}

// Active returns the live indices in increasing order.
func (r *Registry) Active() []uint64 {
	r.mu.Lock()
	out := make([]uint64, 0, len(r.levels))
	for idx := range r.levels {
		out = append(out, idx)
	}
	r.mu.Unlock()

	slices.Sort(out)
	return out
}
