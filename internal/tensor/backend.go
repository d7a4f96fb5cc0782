package tensor

// Backend is the compute interface every device implementation and the
// autodiff decorator satisfy. Methods panic on programmer errors
// (mismatched shapes or dtypes); data-dependent failures do not exist
// at this level.
//
// Implementations:
//   - cpu.Backend: pure Go reference implementation
//   - webgpu.Backend: WGSL compute shaders (windows)
//   - autodiff.Backend[B]: decorator recording ops on a gradient tape
type Backend interface {
	// Element-wise binary ops with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Element-wise ops against a scalar.
	AddScalar(x *RawTensor, s float64) *RawTensor
	MulScalar(x *RawTensor, s float64) *RawTensor

	// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Element-wise unary math.
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor

	// Softmax normalizes along dim (negative dim counts from the end).
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Shape manipulation.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
