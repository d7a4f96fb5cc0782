//go:build windows

package webgpu

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// alloc creates a result tensor or panics; allocation only fails on
// invalid shapes, which is a programmer error by the time an op runs.
func (b *Backend) alloc(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, dtype, tensor.WebGPU)
	if err != nil {
		panic(fmt.Sprintf("webgpu %s: %v", op, err))
	}
	return out
}

// dispatchOp runs one shader over uploaded inputs into a pooled output
// buffer and reads the result back into out's storage.
func (b *Backend) dispatchOp(op, name, src string, inputs []*tensor.RawTensor, out *tensor.RawTensor, params []byte, wx, wy, wz uint32) {
	storage := make([]binding, 0, len(inputs)+1)
	for _, in := range inputs {
		buf := b.upload(in.Data())
		defer buf.Release()
		storage = append(storage, binding{buf, uint64(in.ByteSize())}) //nolint:gosec // G115: byte sizes are non-negative
	}

	outSize := uint64(out.ByteSize()) //nolint:gosec // G115: byte sizes are non-negative
	outBuf := b.pool.acquire(outSize)
	defer b.pool.release(outBuf, outSize)
	storage = append(storage, binding{outBuf, outSize})

	b.run(name, src, storage, params, wx, wy, wz)

	if err := b.readInto(out.Data(), outBuf, outSize); err != nil {
		panic(fmt.Sprintf("webgpu %s: %v", op, err))
	}
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (b *Backend) Add(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("add", "a[idx] + b[idx]", a, other)
}

// Sub performs element-wise subtraction with broadcasting.
func (b *Backend) Sub(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("sub", "a[idx] - b[idx]", a, other)
}

// Mul performs element-wise multiplication with broadcasting.
func (b *Backend) Mul(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("mul", "a[idx] * b[idx]", a, other)
}

// Div performs element-wise division with broadcasting. Integer
// division truncates toward zero.
func (b *Backend) Div(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binary("div", "a[idx] / b[idx]", a, other)
}

// binary dispatches an element-wise two-operand shader. Mismatched
// shapes broadcast by materializing the expanded operands first.
func (b *Backend) binary(op, expr string, a, other *tensor.RawTensor) *tensor.RawTensor {
	dt := checkPair(op, a, other)
	outShape, broadcast, err := tensor.BroadcastShapes(a.Shape(), other.Shape())
	if err != nil {
		panic(fmt.Sprintf("webgpu %s: %v", op, err))
	}
	if broadcast {
		a = b.expand(op, a, outShape)
		other = b.expand(op, other, outShape)
	}

	out := b.alloc(op, outShape, dt)
	elem := elemName(dt)
	b.dispatchOp(op, op+"_"+elem, binarySrc(elem, expr),
		[]*tensor.RawTensor{a, other}, out,
		pack(u32(out.NumElements())),
		groups1D(out.NumElements()), 1, 1)
	return out
}

// AddScalar adds a scalar to every element. The scalar truncates toward
// zero for integer tensors.
func (b *Backend) AddScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	return b.scalar("add_scalar", "x + params.s", x, s)
}

// MulScalar multiplies every element by a scalar. The scalar truncates
// toward zero for integer tensors.
func (b *Backend) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	return b.scalar("mul_scalar", "x * params.s", x, s)
}

func (b *Backend) scalar(op, expr string, x *tensor.RawTensor, s float64) *tensor.RawTensor {
	var sWord uint32
	switch x.DType() {
	case tensor.Float32:
		sWord = f32bits(s)
	case tensor.Int32:
		sWord = uint32(int32(s)) //nolint:gosec // G115: two's-complement bit pattern is intended
	default:
		panic(fmt.Sprintf("webgpu %s: unsupported dtype %v", op, x.DType()))
	}

	out := b.alloc(op, x.Shape(), x.DType())
	elem := elemName(x.DType())
	b.dispatchOp(op, op+"_"+elem, scalarSrc(elem, expr),
		[]*tensor.RawTensor{x}, out,
		pack(u32(x.NumElements()), sWord),
		groups1D(x.NumElements()), 1, 1)
	return out
}

// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != tensor.Float32 || other.DType() != tensor.Float32 {
		panic(fmt.Sprintf("webgpu matmul: float32 required, got %v @ %v", a.DType(), other.DType()))
	}
	as, bs := a.Shape(), other.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("webgpu matmul: 2D tensors required, got %v @ %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("webgpu matmul: inner dimensions differ: %v @ %v", as, bs))
	}

	m, k, n := as[0], as[1], bs[1]
	out := b.alloc("matmul", tensor.Shape{m, n}, tensor.Float32)
	b.dispatchOp("matmul", "matmul", matmulSrc,
		[]*tensor.RawTensor{a, other}, out,
		pack(u32(m), u32(k), u32(n)),
		groups2D(n), groups2D(m), 1)
	return out
}

// Exp computes e^x element-wise.
func (b *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("exp", "exp(x)", x)
}

// Log computes the natural logarithm element-wise.
func (b *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("log", "log(x)", x)
}

// ReLU computes max(0, x) element-wise.
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("relu", "max(0.0, x)", x)
}

// Sigmoid computes 1 / (1 + e^-x) element-wise.
func (b *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("sigmoid", "1.0 / (1.0 + exp(-x))", x)
}

// Tanh computes the hyperbolic tangent element-wise.
func (b *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("tanh", "tanh(x)", x)
}

func (b *Backend) unary(op, expr string, x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("webgpu %s: float32 required, got %v", op, x.DType()))
	}
	out := b.alloc(op, x.Shape(), tensor.Float32)
	b.dispatchOp(op, op, unarySrc(expr),
		[]*tensor.RawTensor{x}, out,
		pack(u32(x.NumElements())),
		groups1D(x.NumElements()), 1, 1)
	return out
}

// Softmax normalizes along dim (negative dims count from the end). The
// maximum is subtracted before exponentiation so large logits do not
// overflow.
func (b *Backend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("webgpu softmax: float32 required, got %v", x.DType()))
	}
	d := normDim("softmax", dim, len(x.Shape()))
	outer, dsize, inner := splitDims(x.Shape(), d)

	out := b.alloc("softmax", x.Shape(), tensor.Float32)
	b.dispatchOp("softmax", "softmax", laneSrc("f32", softmaxBody),
		[]*tensor.RawTensor{x}, out,
		pack(u32(outer), u32(dsize), u32(inner)),
		groups1D(outer*inner), 1, 1)
	return out
}

// Sum reduces all elements to a single-element tensor of shape [1].
// The reduction folds by a factor of workgroupSize per pass through
// shared memory.
func (b *Backend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	var name, src string
	switch x.DType() {
	case tensor.Float32:
		name, src = "sum_f32", reduceSumSrc("f32", "0.0")
	case tensor.Int32:
		name, src = "sum_i32", reduceSumSrc("i32", "0")
	default:
		panic(fmt.Sprintf("webgpu sum: unsupported dtype %v", x.DType()))
	}
	elemSize := uint64(x.DType().Size()) //nolint:gosec // G115: element sizes are tiny

	src0 := b.upload(x.Data())
	cur, curSize := src0, uint64(x.ByteSize()) //nolint:gosec // G115: byte sizes are non-negative
	pooled := false

	n := x.NumElements()
	for n > 1 {
		groups := int(groups1D(n))
		nextSize := uint64(groups) * elemSize
		next := b.pool.acquire(nextSize)

		b.run(name, src,
			[]binding{{cur, curSize}, {next, nextSize}},
			pack(u32(n)), uint32(groups), 1, 1) //nolint:gosec // G115: workgroup counts are non-negative

		if pooled {
			b.pool.release(cur, curSize)
		} else {
			cur.Release()
		}
		cur, curSize, pooled = next, nextSize, true
		n = groups
	}

	out := b.alloc("sum", tensor.Shape{1}, x.DType())
	err := b.readInto(out.Data(), cur, elemSize)
	if pooled {
		b.pool.release(cur, curSize)
	} else {
		cur.Release()
	}
	if err != nil {
		panic(fmt.Sprintf("webgpu sum: %v", err))
	}
	return out
}

// SumDim reduces along dim. Negative dims count from the end. With
// keepDim the reduced dimension stays as size 1, otherwise it is
// dropped (a fully reduced result collapses to shape [1]).
func (b *Backend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	var name, src string
	switch x.DType() {
	case tensor.Float32:
		name, src = "sum_dim_f32", laneSrc("f32", sumLaneBody)
	case tensor.Int32:
		name, src = "sum_dim_i32", sumDimI32Src
	default:
		panic(fmt.Sprintf("webgpu sum_dim: unsupported dtype %v", x.DType()))
	}

	d := normDim("sum_dim", dim, len(x.Shape()))
	outer, dsize, inner := splitDims(x.Shape(), d)

	out := b.alloc("sum_dim", reducedShape(x.Shape(), d, keepDim), x.DType())
	b.dispatchOp("sum_dim", name, src,
		[]*tensor.RawTensor{x}, out,
		pack(u32(outer), u32(dsize), u32(inner)),
		groups1D(outer*inner), 1, 1)
	return out
}

// Argmax returns the int32 index of the maximum along dim. Ties resolve
// to the first occurrence. The reduced dimension is dropped.
func (b *Backend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("webgpu argmax: float32 required, got %v", x.DType()))
	}
	d := normDim("argmax", dim, len(x.Shape()))
	outer, dsize, inner := splitDims(x.Shape(), d)

	out := b.alloc("argmax", reducedShape(x.Shape(), d, false), tensor.Int32)
	b.dispatchOp("argmax", "argmax", laneSrc("i32", argmaxBody),
		[]*tensor.RawTensor{x}, out,
		pack(u32(outer), u32(dsize), u32(inner)),
		groups1D(outer*inner), 1, 1)
	return out
}

// Reshape returns a view over the same buffer; no data moves. The
// element count must match.
func (b *Backend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return x.View(shape)
}

// Transpose permutes dimensions into a freshly laid-out tensor. With no
// axes all dimensions reverse; otherwise axes must be a permutation of
// [0, rank) and output dim i takes input dim axes[i].
func (b *Backend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	rank := len(x.Shape())
	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("webgpu transpose: %d axes for rank %d", len(axes), rank))
	}
	seen := make([]bool, rank)
	for _, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			panic(fmt.Sprintf("webgpu transpose: axes %v is not a permutation of [0, %d)", axes, rank))
		}
		seen[a] = true
	}

	srcShape := x.Shape()
	outShape := make(tensor.Shape, rank)
	for i, a := range axes {
		outShape[i] = srcShape[a]
	}

	// 2D float matrices get the dedicated swap shader.
	if rank == 2 && x.DType() == tensor.Float32 && axes[0] == 1 && axes[1] == 0 {
		out := b.alloc("transpose", outShape, tensor.Float32)
		b.dispatchOp("transpose", "transpose2d", transpose2DSrc,
			[]*tensor.RawTensor{x}, out,
			pack(u32(srcShape[0]), u32(srcShape[1])),
			groups2D(srcShape[1]), groups2D(srcShape[0]), 1)
		return out
	}

	srcStrides := x.Shape().ComputeStrides()
	inStrides := make([]int, rank)
	for i, a := range axes {
		inStrides[i] = srcStrides[a]
	}
	return b.gatherStrided("transpose", x, outShape, inStrides)
}

// expand materializes t broadcast to outShape by gathering with zero
// strides on the broadcast dims.
func (b *Backend) expand(op string, t *tensor.RawTensor, outShape tensor.Shape) *tensor.RawTensor {
	if t.Shape().Equal(outShape) {
		return t
	}

	srcShape := t.Shape()
	srcStrides := srcShape.ComputeStrides()
	inStrides := make([]int, len(outShape))
	offset := len(outShape) - len(srcShape)
	for d := offset; d < len(outShape); d++ {
		if srcShape[d-offset] == 1 && outShape[d] != 1 {
			continue
		}
		inStrides[d] = srcStrides[d-offset]
	}
	return b.gatherStrided(op, t, outShape, inStrides)
}

// gatherStrided copies t into a tensor of outShape, mapping each output
// element through the given per-dim input strides.
func (b *Backend) gatherStrided(op string, t *tensor.RawTensor, outShape tensor.Shape, inStrides []int) *tensor.RawTensor {
	rank := len(outShape)
	if rank > maxRank {
		panic(fmt.Sprintf("webgpu %s: rank %d exceeds device limit %d", op, rank, maxRank))
	}

	out := b.alloc(op, outShape, t.DType())
	outStrides := outShape.ComputeStrides()

	words := make([]uint32, 2+2*maxRank)
	words[0] = u32(rank)
	words[1] = u32(out.NumElements())
	for d := 0; d < rank; d++ {
		words[2+d] = u32(outStrides[d])
		words[2+maxRank+d] = u32(inStrides[d])
	}

	elem := elemName(t.DType())
	b.dispatchOp(op, "gather_"+elem, gatherSrc(elem),
		[]*tensor.RawTensor{t}, out,
		pack(words...),
		groups1D(out.NumElements()), 1, 1)
	return out
}

// checkPair validates that a binary op's operands share a supported
// dtype and returns it.
func checkPair(op string, a, b *tensor.RawTensor) tensor.DataType {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("webgpu %s: dtype mismatch: %v vs %v", op, a.DType(), b.DType()))
	}
	switch a.DType() {
	case tensor.Float32, tensor.Int32:
		return a.DType()
	default:
		panic(fmt.Sprintf("webgpu %s: unsupported dtype %v", op, a.DType()))
	}
}

func elemName(dt tensor.DataType) string {
	if dt == tensor.Float32 {
		return "f32"
	}
	return "i32"
}

// normDim maps a possibly negative dim into [0, rank).
func normDim(op string, dim, rank int) int {
	d := dim
	if d < 0 {
		d += rank
	}
	if d < 0 || d >= rank {
		panic(fmt.Sprintf("webgpu %s: dim %d out of range for rank %d", op, dim, rank))
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

// u32 narrows a non-negative int for shader params.
func u32(v int) uint32 {
	return uint32(v) //nolint:gosec // G115: tensor geometry is non-negative
}
