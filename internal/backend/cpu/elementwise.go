package cpu

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/parallel"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// number constrains the element types the arithmetic ops support.
type number interface {
	~float32 | ~int32
}

func f32(r *tensor.RawTensor) []float32 { return r.AsFloat32() }
func i32(r *tensor.RawTensor) []int32   { return r.AsInt32() }

// Add performs element-wise addition with NumPy-style broadcasting.
func (c *Backend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if checkPair("add", a, b) == tensor.Float32 {
		return binary(c, "add", a, b, f32, func(x, y float32) float32 { return x + y })
	}
	return binary(c, "add", a, b, i32, func(x, y int32) int32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (c *Backend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	if checkPair("sub", a, b) == tensor.Float32 {
		return binary(c, "sub", a, b, f32, func(x, y float32) float32 { return x - y })
	}
	return binary(c, "sub", a, b, i32, func(x, y int32) int32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (c *Backend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	if checkPair("mul", a, b) == tensor.Float32 {
		return binary(c, "mul", a, b, f32, func(x, y float32) float32 { return x * y })
	}
	return binary(c, "mul", a, b, i32, func(x, y int32) int32 { return x * y })
}

// Div performs element-wise division with broadcasting. Integer division
// truncates toward zero and panics on a zero divisor.
func (c *Backend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	if checkPair("div", a, b) == tensor.Float32 {
		return binary(c, "div", a, b, f32, func(x, y float32) float32 { return x / y })
	}
	return binary(c, "div", a, b, i32, func(x, y int32) int32 { return x / y })
}

// AddScalar adds a scalar to every element. The scalar truncates toward
// zero for integer tensors.
func (c *Backend) AddScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	switch x.DType() {
	case tensor.Float32:
		return mapOp(c, "add_scalar", x, f32, func(v float32) float32 { return v + float32(s) })
	case tensor.Int32:
		return mapOp(c, "add_scalar", x, i32, func(v int32) int32 { return v + int32(s) })
	default:
		panic(fmt.Sprintf("cpu add_scalar: unsupported dtype %v", x.DType()))
	}
}

// MulScalar multiplies every element by a scalar. The scalar truncates
// toward zero for integer tensors.
func (c *Backend) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	switch x.DType() {
	case tensor.Float32:
		return mapOp(c, "mul_scalar", x, f32, func(v float32) float32 { return v * float32(s) })
	case tensor.Int32:
		return mapOp(c, "mul_scalar", x, i32, func(v int32) int32 { return v * int32(s) })
	default:
		panic(fmt.Sprintf("cpu mul_scalar: unsupported dtype %v", x.DType()))
	}
}

// checkPair validates that a binary op's operands share a supported
// dtype and returns it.
func checkPair(op string, a, b *tensor.RawTensor) tensor.DataType {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("cpu %s: dtype mismatch: %v vs %v", op, a.DType(), b.DType()))
	}
	switch a.DType() {
	case tensor.Float32, tensor.Int32:
		return a.DType()
	default:
		panic(fmt.Sprintf("cpu %s: unsupported dtype %v", op, a.DType()))
	}
}

// binary runs an element-wise kernel over two tensors. When the shapes
// already match and a's storage is not aliased, the result reuses a
// in place; otherwise a fresh tensor is allocated. Broadcasting falls
// back to the strided path.
func binary[T number](c *Backend, op string, a, b *tensor.RawTensor, view func(*tensor.RawTensor) []T, f func(x, y T) T) *tensor.RawTensor {
	outShape, broadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("cpu %s: %v", op, err))
	}

	if !broadcast {
		dst := a
		if !a.IsUnique() {
			dst = c.alloc(op, outShape, a.DType())
		}
		d, av, bv := view(dst), view(a), view(b)
		parallel.For(len(d), func(i int) { d[i] = f(av[i], bv[i]) }, c.pool)
		return dst
	}

	out := c.alloc(op, outShape, a.DType())
	zipBroadcast(view(out), view(a), view(b),
		broadcastStrides(a.Shape(), outShape),
		broadcastStrides(b.Shape(), outShape),
		outShape, f)
	return out
}

// mapOp runs a unary kernel, reusing x's storage when it is not aliased.
func mapOp[T number](c *Backend, op string, x *tensor.RawTensor, view func(*tensor.RawTensor) []T, f func(T) T) *tensor.RawTensor {
	dst := x
	if !x.IsUnique() {
		dst = c.alloc(op, x.Shape(), x.DType())
	}
	d, src := view(dst), view(x)
	parallel.For(len(d), func(i int) { d[i] = f(src[i]) }, c.pool)
	return dst
}

// broadcastStrides returns element strides of src aligned to out, with
// stride 0 on broadcast dimensions so the source index stays put while
// the output index advances.
func broadcastStrides(src, out tensor.Shape) []int {
	strides := make([]int, len(out))
	srcStrides := src.ComputeStrides()
	offset := len(out) - len(src)
	for d := offset; d < len(out); d++ {
		if src[d-offset] == 1 && out[d] != 1 {
			continue
		}
		strides[d] = srcStrides[d-offset]
	}
	return strides
}

// zipBroadcast walks the output shape with an odometer, advancing the
// two source offsets by their (possibly zero) broadcast strides.
func zipBroadcast[T number](dst, a, b []T, sa, sb []int, out tensor.Shape, f func(x, y T) T) {
	coords := make([]int, len(out))
	ia, ib := 0, 0
	for i := range dst {
		dst[i] = f(a[ia], b[ib])
		for d := len(out) - 1; d >= 0; d-- {
			coords[d]++
			ia += sa[d]
			ib += sb[d]
			if coords[d] < out[d] {
				break
			}
			coords[d] = 0
			ia -= sa[d] * out[d]
			ib -= sb[d] * out[d]
		}
	}
}
