//go:build windows

package main

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/backend/webgpu"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// newDeviceBackend constructs the tensor backend for the configured
// device. The webgpu backend holds native resources; its release func
// must run when the command is done with it.
func newDeviceBackend(device string) (tensor.Backend, func(), error) {
	switch device {
	case "cpu":
		return cpu.New(), func() {}, nil
	case "webgpu":
		gpu, err := webgpu.New()
		if err != nil {
			return nil, nil, fmt.Errorf("webgpu unavailable: %w", err)
		}
		return gpu, gpu.Release, nil
	default:
		return nil, nil, fmt.Errorf("unknown device %q", device)
	}
}
