package forward

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/forwardad/internal/tensor"
)

// DualLevel is an entered forward AD level as seen by user code.
type DualLevel struct {
	reg    *Registry
	idx    uint64
	exited atomic.Bool
}

// EnterDualLevel enters a new level in reg (DefaultRegistry when nil).
// It fails with ErrForwardADDisabled while forward AD is switched off.
func EnterDualLevel(reg *Registry) (*DualLevel, error) {
	if !IsEnabled() {
		return nil, ErrForwardADDisabled
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &DualLevel{reg: reg, idx: reg.NextIndex()}, nil
}

// Index returns the level index.
func (d *DualLevel) Index() uint64 {
	return d.idx
}

// exitedAlready reports whether Exit has been called. Its index may
// belong to a different level by now.
func (d *DualLevel) exitedAlready() bool {
	return d.exited.Load()
}

// Exit releases the level. Every tangent stored under it disappears before
// Exit returns. A second Exit reports ErrUnknownLevel without touching
// whichever level now owns the recycled index.
func (d *DualLevel) Exit() error {
	if !d.exited.CompareAndSwap(false, true) {
		return unknownLevel("exit", d.idx)
	}
	return d.reg.Release(d.idx)
}

// Dual is a differentiable value: a primal tensor plus one tangent per level.
type Dual struct {
	primal *tensor.RawTensor
	grad   *Grad
	closed atomic.Bool
}

// NewDual wraps primal. Tangents are looked up in reg (DefaultRegistry when nil).
func NewDual(primal *tensor.RawTensor, reg *Registry) *Dual {
	return &Dual{
		primal: primal,
		grad:   NewGrad(reg),
	}
}

// Primal returns the primal tensor.
func (d *Dual) Primal() *tensor.RawTensor {
	return d.primal
}

// Grad returns the underlying gradient holder.
func (d *Dual) Grad() *Grad {
	return d.grad
}

// SetTangent stores tangent for lvl. The tangent must have the primal's
// shape, dtype and device. An exited lvl reports ErrUnknownLevel even if its
// index has been handed to a new level.
func (d *Dual) SetTangent(tangent *tensor.RawTensor, lvl *DualLevel) error {
	if lvl.exitedAlready() {
		return unknownLevel("set", lvl.idx)
	}
	if tangent.Defined() && !tangent.SameLayout(d.primal) {
		return fmt.Errorf("%w: tangent %v, primal %v", ErrTangentMismatch, tangent, d.primal)
	}
	return d.grad.Set(tangent, lvl.Index())
}

// Tangent returns the tangent for lvl, or UndefinedGrad. An exited lvl
// always yields UndefinedGrad.
func (d *Dual) Tangent(lvl *DualLevel) *tensor.RawTensor {
	if lvl.exitedAlready() {
		return undefinedGrad
	}
	return d.grad.Value(lvl.Index())
}

// Unpack returns the primal and the tangent for lvl.
func (d *Dual) Unpack(lvl *DualLevel) (primal, tangent *tensor.RawTensor) {
	return d.primal, d.Tangent(lvl)
}

// IsDual reports whether d carries a tangent for any level.
func (d *Dual) IsDual() bool {
	return !d.grad.Empty()
}

// Close tears down d's forward gradients. Only the first call has an effect.
func (d *Dual) Close() {
	if d.closed.CompareAndSwap(false, true) {
		d.grad.Clear()
	}
}
