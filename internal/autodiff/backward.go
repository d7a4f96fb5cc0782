package autodiff

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// GradientRecorder is satisfied by backends that record onto a tape.
// The training loop's backward stage asserts this at runtime so models
// built on a plain device backend fail with an error instead of a
// panic.
type GradientRecorder interface {
	tensor.Backend
	Tape() *GradientTape
}

// Backward seeds the output gradient with ones and walks the tape,
// returning a gradient per raw tensor on the path. The usual call site
// passes the scalar loss.
func Backward[T tensor.DType, B GradientRecorder](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return BackwardRaw(t.Raw(), backend)
}

// BackwardRaw is Backward for callers that hold the output as a raw
// tensor, or whose backend is a GradientRecorder only at runtime.
func BackwardRaw(out *tensor.RawTensor, backend GradientRecorder) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("autodiff: no operations recorded (is the tape recording?)")
	}
	if out.DType() != tensor.Float32 {
		panic(fmt.Sprintf("autodiff: cannot differentiate %v output", out.DType()))
	}

	seed, err := tensor.NewRaw(out.Shape(), tensor.Float32, backend.Device())
	if err != nil {
		panic(fmt.Sprintf("autodiff: %v", err))
	}
	ones := seed.AsFloat32()
	for i := range ones {
		ones[i] = 1
	}

	return tape.Backward(seed, backend)
}
