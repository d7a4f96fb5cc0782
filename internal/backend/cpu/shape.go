package cpu

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Reshape returns a view over the same buffer; no data moves. The
// element count must match.
func (c *Backend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return x.View(shape)
}

// Transpose permutes dimensions into a freshly laid-out tensor. With no
// axes all dimensions reverse; otherwise axes must be a permutation of
// [0, rank) and output dim i takes input dim axes[i].
func (c *Backend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	rank := len(x.Shape())
	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("cpu transpose: %d axes for rank %d", len(axes), rank))
	}
	seen := make([]bool, rank)
	for _, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			panic(fmt.Sprintf("cpu transpose: axes %v is not a permutation of [0, %d)", axes, rank))
		}
		seen[a] = true
	}

	srcShape := x.Shape()
	outShape := make(tensor.Shape, rank)
	for i, a := range axes {
		outShape[i] = srcShape[a]
	}
	out := c.alloc("transpose", outShape, x.DType())

	// dstStride[d] is how far the output offset moves when source dim d
	// advances by one.
	outStrides := outShape.ComputeStrides()
	dstStride := make([]int, rank)
	for i, a := range axes {
		dstStride[a] = outStrides[i]
	}

	switch x.DType() {
	case tensor.Float32:
		permute(out.AsFloat32(), x.AsFloat32(), srcShape, dstStride)
	case tensor.Int32:
		permute(out.AsInt32(), x.AsInt32(), srcShape, dstStride)
	default:
		panic(fmt.Sprintf("cpu transpose: unsupported dtype %v", x.DType()))
	}
	return out
}

// permute walks src linearly, scattering into dst via per-dim strides.
func permute[T number](dst, src []T, shape tensor.Shape, dstStride []int) {
	coords := make([]int, len(shape))
	di := 0
	for _, v := range src {
		dst[di] = v
		for d := len(shape) - 1; d >= 0; d-- {
			coords[d]++
			di += dstStride[d]
			if coords[d] < shape[d] {
				break
			}
			coords[d] = 0
			di -= dstStride[d] * shape[d]
		}
	}
}
