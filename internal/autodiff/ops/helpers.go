package ops

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// reduceBroadcast sums a gradient down to the target shape, undoing any
// broadcasting the forward pass applied. When the shapes already match
// the gradient is cloned so later in-place accumulation cannot corrupt
// a shared tensor.
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad.Clone()
	}

	result := grad
	for len(result.Shape()) > len(target) {
		result = backend.SumDim(result, 0, false)
	}
	for d := 0; d < len(target); d++ {
		if target[d] == 1 && result.Shape()[d] > 1 {
			result = backend.SumDim(result, d, true)
		}
	}
	if !result.Shape().Equal(target) {
		result = backend.Reshape(result, target)
	}
	return result
}

// newFloat32 allocates a float32 tensor for gradient math.
func newFloat32(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(fmt.Sprintf("autodiff: %v", err))
	}
	return out
}

// mustFloat32 guards ops that only differentiate float32 tensors.
func mustFloat32(op string, t *tensor.RawTensor) {
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("autodiff %s: float32 required, got %v", op, t.DType()))
	}
}
