// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor payload stored as a forward gradient.
//
// The forward gradient storage never looks inside a tensor. It only needs to
// hold a reference to one and to tell a defined tensor from the shared
// undefined one.
//
// # Basic Usage
//
//	primal, _ := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
//	tangent, _ := tensor.FromFloat32([]float32{1, 0, 0}, tensor.Shape{3})
//
//	tangent.Defined()           // true
//	tangent.SameLayout(primal)  // true
//
// # Memory
//
// Buffers are reference counted. Clone shares the buffer and Release drops
// one reference.
package tensor
