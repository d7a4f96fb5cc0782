package cpu

import (
	"fmt"
	"math"

	"github.com/anvil-ml/anvil/internal/parallel"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Exp computes e^x element-wise.
func (c *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(c, "exp", x, func(v float32) float32 {
		return float32(math.Exp(float64(v)))
	})
}

// Log computes the natural logarithm element-wise.
func (c *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(c, "log", x, func(v float32) float32 {
		return float32(math.Log(float64(v)))
	})
}

// ReLU computes max(0, x) element-wise.
func (c *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(c, "relu", x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Sigmoid computes 1 / (1 + e^-x) element-wise.
func (c *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(c, "sigmoid", x, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// Tanh computes the hyperbolic tangent element-wise.
func (c *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(c, "tanh", x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// unary runs a float32 kernel, reusing x's storage when not aliased.
func unary(c *Backend, op string, x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu %s: float32 required, got %v", op, x.DType()))
	}
	dst := x
	if !x.IsUnique() {
		dst = c.alloc(op, x.Shape(), tensor.Float32)
	}
	d, src := dst.AsFloat32(), x.AsFloat32()
	parallel.For(len(d), func(i int) { d[i] = f(src[i]) }, c.pool)
	return dst
}
