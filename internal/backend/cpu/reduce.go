package cpu

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/parallel"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Sum reduces all elements to a single-element tensor of shape [1].
// Float32 sums accumulate in float64 to limit rounding drift.
func (c *Backend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := c.alloc("sum", tensor.Shape{1}, x.DType())
	switch x.DType() {
	case tensor.Float32:
		var acc float64
		for _, v := range x.AsFloat32() {
			acc += float64(v)
		}
		out.AsFloat32()[0] = float32(acc)
	case tensor.Int32:
		var acc int64
		for _, v := range x.AsInt32() {
			acc += int64(v)
		}
		out.AsInt32()[0] = int32(acc)
	default:
		panic(fmt.Sprintf("cpu sum: unsupported dtype %v", x.DType()))
	}
	return out
}

// SumDim reduces along dim. Negative dims count from the end. With
// keepDim the reduced dimension stays as size 1, otherwise it is
// dropped (a fully reduced result collapses to shape [1]).
func (c *Backend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	d := normDim("sum_dim", dim, len(x.Shape()))
	outer, dsize, inner := splitDims(x.Shape(), d)
	out := c.alloc("sum_dim", reducedShape(x.Shape(), d, keepDim), x.DType())

	switch x.DType() {
	case tensor.Float32:
		sumDim(out.AsFloat32(), x.AsFloat32(), outer, dsize, inner, c.pool)
	case tensor.Int32:
		sumDim(out.AsInt32(), x.AsInt32(), outer, dsize, inner, c.pool)
	default:
		panic(fmt.Sprintf("cpu sum_dim: unsupported dtype %v", x.DType()))
	}
	return out
}

// Argmax returns the int32 index of the maximum along dim. Ties resolve
// to the first occurrence. The reduced dimension is dropped.
func (c *Backend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu argmax: float32 required, got %v", x.DType()))
	}
	d := normDim("argmax", dim, len(x.Shape()))
	outer, dsize, inner := splitDims(x.Shape(), d)
	out := c.alloc("argmax", reducedShape(x.Shape(), d, false), tensor.Int32)

	src, dst := x.AsFloat32(), out.AsInt32()
	parallel.For(outer*inner, func(oi int) {
		o, i := oi/inner, oi%inner
		base := o*dsize*inner + i
		best, bestIdx := src[base], int32(0)
		for j := 1; j < dsize; j++ {
			if v := src[base+j*inner]; v > best {
				best, bestIdx = v, int32(j)
			}
		}
		dst[oi] = bestIdx
	}, c.pool)

	return out
}

func sumDim[T number](dst, src []T, outer, dsize, inner int, pool parallel.Config) {
	parallel.For(outer*inner, func(oi int) {
		o, i := oi/inner, oi%inner
		base := o*dsize*inner + i
		var acc T
		for j := 0; j < dsize; j++ {
			acc += src[base+j*inner]
		}
		dst[oi] = acc
	}, pool)
}

// normDim maps a possibly negative dim into [0, rank).
func normDim(op string, dim, rank int) int {
	d := dim
	if d < 0 {
		d += rank
	}
	if d < 0 || d >= rank {
		panic(fmt.Sprintf("cpu %s: dim %d out of range for rank %d", op, dim, rank))
	}
	return d
}

// splitDims factors a shape around dim into (outer, dim size, inner)
// element counts, so index math stays flat.
func splitDims(shape tensor.Shape, dim int) (outer, dsize, inner int) {
	outer, dsize, inner = 1, shape[dim], 1
	for _, s := range shape[:dim] {
		outer *= s
	}
	for _, s := range shape[dim+1:] {
		inner *= s
	}
	return outer, dsize, inner
}

// reducedShape drops or keeps the reduced dim.
func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	out = append(out, shape[dim+1:]...)
	if len(out) == 0 {
		out = tensor.Shape{1}
	}
	return out
}
