// Package cpu implements the pure-Go reference backend.
//
// Float32 is the primary compute type; int32 covers the label paths
// (element-wise arithmetic, scalar ops and Argmax output). Large loops
// run through the parallel package, sized from the physical core count.
package cpu

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/parallel"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Backend implements tensor.Backend on the host CPU.
type Backend struct {
	pool parallel.Config
}

// Option configures a Backend.
type Option func(*Backend)

// WithParallel overrides the worker pool configuration. The default is
// sized from the physical core count.
func WithParallel(cfg parallel.Config) Option {
	return func(b *Backend) { b.pool = cfg }
}

// New creates a CPU backend.
func New(opts ...Option) *Backend {
	b := &Backend{pool: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend name.
func (c *Backend) Name() string { return "cpu" }

// Device returns tensor.CPU.
func (c *Backend) Device() tensor.Device { return tensor.CPU }

// alloc creates a result tensor or panics. Allocation only fails on
// invalid shapes, which is a programmer error by the time an op runs.
func (c *Backend) alloc(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("cpu %s: %v", op, err))
	}
	return out
}
