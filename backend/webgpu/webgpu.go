//go:build windows

// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the GPU backend built on WGSL compute
// shaders.
//
// The backend needs the wgpu_native library at runtime and is
// currently build-gated to windows. Use IsAvailable for graceful
// fallback:
//
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.New()
//	    ...
//	    defer gpu.Release()
//	    backend = autodiff.New(gpu)
//	} else {
//	    backend = autodiff.New(cpu.New())
//	}
package webgpu

import (
	internalwebgpu "github.com/anvil-ml/anvil/internal/backend/webgpu"
	"github.com/anvil-ml/anvil/tensor"
)

// Backend implements tensor operations on a WebGPU device.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a WebGPU backend on the highest-performance adapter.
// Call Release when done to free GPU resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be acquired on this
// machine.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
