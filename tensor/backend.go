// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/anvil-ml/anvil/internal/tensor"

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - backend/cpu: Pure Go, parallelized across physical cores
//   - backend/webgpu: Zero-CGO GPU compute via WebGPU (Windows builds)
//
// Decorator backends for additional functionality:
//   - autodiff: Automatic differentiation (wraps any backend)
//
// Example:
//
//	import (
//	    "github.com/anvil-ml/anvil/tensor"
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	)
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)  // Uses backend.Add under the hood
type Backend interface {
	// Element-wise binary operations, with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor // Element-wise addition.
	Sub(a, b *RawTensor) *RawTensor // Element-wise subtraction.
	Mul(a, b *RawTensor) *RawTensor // Element-wise multiplication.
	Div(a, b *RawTensor) *RawTensor // Element-wise division.

	// Scalar operations (element-wise with scalar).
	AddScalar(x *RawTensor, s float64) *RawTensor // Add scalar.
	MulScalar(x *RawTensor, s float64) *RawTensor // Multiply by scalar.

	// Matrix operations.
	MatMul(a, b *RawTensor) *RawTensor // 2D matrix multiplication.

	// Math operations (element-wise).
	Exp(x *RawTensor) *RawTensor // Exponential.
	Log(x *RawTensor) *RawTensor // Natural logarithm.

	// Activation functions.
	Softmax(x *RawTensor, dim int) *RawTensor // Softmax along dimension.

	// Reduction operations.
	Sum(x *RawTensor) *RawTensor                           // Total sum (shape [1] result).
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor // Sum along dimension.
	Argmax(x *RawTensor, dim int) *RawTensor               // Index of maximum value along dimension.

	// Shape operations.
	Reshape(x *RawTensor, shape Shape) *RawTensor // Reshape tensor (view).
	Transpose(x *RawTensor, axes ...int) *RawTensor

	// Metadata.
	Name() string   // Backend name (e.g., "cpu", "webgpu").
	Device() Device // Device type.
}

// Compile-time check that internal Backend implements public Backend.
var _ Backend = tensor.Backend(nil)
