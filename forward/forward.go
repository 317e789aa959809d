// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package forward provides level-scoped storage for forward-mode AD gradients.
//
// Each nested forward AD invocation is a level. Gradients stored for a level
// disappear when the level is exited, and a recycled level index never
// exposes gradients from its previous use.
//
// Example:
//
//	import (
//	    "github.com/born-ml/forwardad/forward"
//	    "github.com/born-ml/forwardad/tensor"
//	)
//
//	func main() {
//	    forward.SetEnabled(true)
//
//	    lvl, _ := forward.EnterDualLevel(nil)
//	    defer lvl.Exit()
//
//	    x, _ := tensor.FromFloat32([]float32{2}, tensor.Shape{1})
//	    dx, _ := tensor.FromFloat32([]float32{1}, tensor.Shape{1})
//
//	    d := forward.NewDual(x, nil)
//	    defer d.Close()
//	    _ = d.SetTangent(dx, lvl)
//
//	    primal, tangent := d.Unpack(lvl)
//	}
package forward

import (
	"github.com/born-ml/forwardad/internal/forward"
	"github.com/born-ml/forwardad/internal/tensor"
)

// ExpectedMaxLevel is the nesting depth the storage is sized for.
const ExpectedMaxLevel = forward.ExpectedMaxLevel

// Registry is a table of live levels.
type Registry = forward.Registry

// Level is one live level.
type Level = forward.Level

// Grad holds one object's gradients, one per level.
type Grad = forward.Grad

// DualLevel is an entered level as used by Dual.
type DualLevel = forward.DualLevel

// Dual pairs a primal tensor with per-level tangents.
type Dual = forward.Dual

// LevelError describes a failed operation against a level index.
type LevelError = forward.LevelError

// Errors.
var (
	ErrUnknownLevel      = forward.ErrUnknownLevel
	ErrUndefinedValue    = forward.ErrUndefinedValue
	ErrForwardADDisabled = forward.ErrForwardADDisabled
	ErrTangentMismatch   = forward.ErrTangentMismatch
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return forward.NewRegistry()
}

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return forward.DefaultRegistry()
}

// NewGrad creates an empty gradient holder bound to reg (DefaultRegistry when nil).
func NewGrad(reg *Registry) *Grad {
	return forward.NewGrad(reg)
}

// UndefinedGrad returns the shared tensor reported for missing gradients.
func UndefinedGrad() *tensor.RawTensor {
	return forward.UndefinedGrad()
}

// IsEnabled reports whether forward AD bookkeeping is on.
func IsEnabled() bool {
	return forward.IsEnabled()
}

// SetEnabled switches forward AD bookkeeping on or off.
func SetEnabled(enabled bool) {
	forward.SetEnabled(enabled)
}

// EnterDualLevel enters a new level in reg (DefaultRegistry when nil).
func EnterDualLevel(reg *Registry) (*DualLevel, error) {
	return forward.EnterDualLevel(reg)
}

// NewDual wraps primal as a dual tensor.
func NewDual(primal *tensor.RawTensor, reg *Registry) *Dual {
	return forward.NewDual(primal, reg)
}
