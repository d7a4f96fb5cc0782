//go:build !windows

package main

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// newDeviceBackend constructs the tensor backend for the configured
// device. The webgpu backend is only compiled on windows; elsewhere
// asking for it is an error rather than a silent fallback.
func newDeviceBackend(device string) (tensor.Backend, func(), error) {
	switch device {
	case "cpu":
		return cpu.New(), func() {}, nil
	case "webgpu":
		return nil, nil, fmt.Errorf("device webgpu requires a windows build with wgpu_native installed")
	default:
		return nil, nil, fmt.Errorf("unknown device %q", device)
	}
}
