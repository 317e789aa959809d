package forward

import (
	"slices"
	"sync"

	"github.com/born-ml/forwardad/internal/tensor"
)

// undefinedGrad is returned for every missing entry. It has no buffer, so
// there is nothing in it to mutate.
var undefinedGrad = tensor.Undefined()

// UndefinedGrad returns the shared undefined gradient. Callers tell "no
// gradient" apart from a zero gradient by comparing against it.
func UndefinedGrad() *tensor.RawTensor {
	return undefinedGrad
}

// Grad holds the forward gradients of one differentiable object, one per
// level index.
//
// A Grad is shared by its owner and by every Level it is registered with.
// It refers to levels only by index through its Registry.
type Grad struct {
	reg *Registry

	mu      sync.RWMutex
	content map[uint64]*tensor.RawTensor
}

// NewGrad creates an empty Grad bound to reg. A nil reg selects
// DefaultRegistry.
func NewGrad(reg *Registry) *Grad {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Grad{
		reg:     reg,
		content: make(map[uint64]*tensor.RawTensor, ExpectedMaxLevel),
	}
}

// Set stores value as the gradient for level idx, replacing any previous one,
// and registers g with that level.
//
// Set fails with ErrUnknownLevel if idx is not live or is being released.
func (g *Grad) Set(value *tensor.RawTensor, idx uint64) error {
	if !value.Defined() {
		return ErrUndefinedValue
	}

	lvl, ok := g.reg.TryGet(idx)
	if !ok {
		return unknownLevel("set", idx)
	}
	return lvl.attach(g, value)
}

// Reset drops the gradient for level idx and unregisters g from that level.
// idx must be live.
func (g *Grad) Reset(idx uint64) error {
	lvl, ok := g.reg.TryGet(idx)
	if !ok {
		return unknownLevel("reset", idx)
	}
	lvl.detach(g)
	return nil
}

// Forget drops the gradient for level idx without touching the level.
// Levels call it while resetting their members; it must not call back into
// any Level.
func (g *Grad) Forget(idx uint64) {
	g.mu.Lock()
	delete(g.content, idx)
	g.mu.Unlock()
}

// Value returns the gradient for level idx, or UndefinedGrad if there is none.
func (g *Grad) Value(idx uint64) *tensor.RawTensor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if v, ok := g.content[idx]; ok {
		return v
	}
	return undefinedGrad
}

// Contains reports whether g has a gradient for level idx.
func (g *Grad) Contains(idx uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.content[idx]
	return ok
}

// Empty reports whether g holds no gradient at all. Owners use it to skip
// forward AD bookkeeping.
func (g *Grad) Empty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.content) == 0
}

// Levels returns the indices g holds a gradient for, in increasing order.
func (g *Grad) Levels() []uint64 {
	g.mu.RLock()
	out := make([]uint64, 0, len(g.content))
	for idx := range g.content {
		out = append(out, idx)
	}
	g.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Clear unregisters g from every level it holds a gradient for.
//
// Clear is the owner's destruction path. It must only run once no further
// Set or Value call can come from the owner, but any registered level may be
// released concurrently. Calling it more than once is harmless.
func (g *Grad) Clear() {
	levels := g.Levels()

	for _, idx := range levels {
		// The level may be gone already; its drain has then dropped our entry.
		if lvl, ok := g.reg.TryGet(idx); ok {
			lvl.detach(g)
		}
	}

	g.mu.Lock()
	clear(g.content)
	g.mu.Unlock()
}

func (g *Grad) store(idx uint64, value *tensor.RawTensor) {
	g.mu.Lock()
	g.content[idx] = value
	g.mu.Unlock()
}
