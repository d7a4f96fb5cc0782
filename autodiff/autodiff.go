// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation
// (backpropagation) using a gradient tape. It wraps any backend to add
// autodiff capabilities.
//
// Example:
//
//	import (
//	    "github.com/anvil-ml/anvil/autodiff"
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	    "github.com/anvil-ml/anvil/tensor"
//	)
//
//	func main() {
//	    // Wrap CPU backend with autodiff
//	    backend := autodiff.New(cpu.New())
//	    backend.Tape().StartRecording()
//
//	    x := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    y := x.Mul(x) // Operations recorded on tape
//
//	    // Compute gradients of y with respect to everything on the tape
//	    grads := autodiff.Backward(y.Sum(), backend)
//	    _ = grads[x.Raw()] // dy/dx
//	}
package autodiff

import (
	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Backend is the autodiff-enabled backend decorator.
type Backend[B tensor.Backend] = autodiff.Backend[B]

// New creates a new autodiff backend wrapping the given backend.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// GradientRecorder is the interface of backends that record onto a
// gradient tape. The train package detects it to flip recording on and
// off around train and eval passes.
type GradientRecorder = autodiff.GradientRecorder

// Backward computes gradients of a scalar tensor with respect to every
// recorded input, via backpropagation over the tape.
func Backward[T tensor.DType, B GradientRecorder](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// BackwardRaw is the untyped variant of Backward for callers holding a
// RawTensor.
func BackwardRaw(out *tensor.RawTensor, backend GradientRecorder) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.BackwardRaw(out, backend)
}
