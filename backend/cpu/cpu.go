// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go CPU backend.
//
// The CPU backend is the reference implementation: every operation is
// plain Go, parallelized across physical cores. It has no external
// runtime requirements and works on every platform.
package cpu

import (
	internalcpu "github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/tensor"
)

// Backend implements tensor operations on the host CPU.
type Backend = internalcpu.Backend

// Option configures a Backend.
type Option = internalcpu.Option

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend.
//
// Example:
//
//	import (
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	    "github.com/anvil-ml/anvil/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	}
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}
