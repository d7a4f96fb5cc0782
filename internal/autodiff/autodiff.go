// Package autodiff adds reverse-mode automatic differentiation to any
// backend through the decorator pattern.
//
// Backend[B] wraps a device backend, pins every operand so the inner
// backend cannot overwrite it in place, forwards the computation, and
// records the operation on a GradientTape when recording is on. The
// tape then replays in reverse to produce a gradient per tensor.
//
//	be := autodiff.New(cpu.New())
//	be.Tape().StartRecording()
//	y := model.Forward(x)
//	loss := lossFn(y, targets)
//	grads := autodiff.Backward(loss, be)
package autodiff

import (
	"github.com/anvil-ml/anvil/internal/autodiff/ops"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Backend decorates an inner backend with gradient recording.
type Backend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New wraps a backend with a fresh gradient tape.
func New[B tensor.Backend](inner B) *Backend[B] {
	return &Backend[B]{inner: inner, tape: NewGradientTape()}
}

// Tape returns the gradient tape for recording control.
func (b *Backend[B]) Tape() *GradientTape { return b.tape }

// Inner returns the wrapped backend.
func (b *Backend[B]) Inner() B { return b.inner }

// Name returns the decorated backend name.
func (b *Backend[B]) Name() string { return "autodiff(" + b.inner.Name() + ")" }

// Device returns the inner backend's device.
func (b *Backend[B]) Device() tensor.Device { return b.inner.Device() }

// recordable reports whether gradients can flow through a result.
// Integer tensors never carry gradients, so their ops stay off the tape.
func (b *Backend[B]) recordable(x *tensor.RawTensor) bool {
	return b.tape.IsRecording() && x.DType() == tensor.Float32
}

// Add computes a + x and records the op.
func (b *Backend[B]) Add(a, x *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer x.ForceNonUnique()()
	out := b.inner.Add(a, x)
	if b.recordable(out) {
		b.tape.Record(ops.NewAddOp(a, x, out))
	}
	return out
}

// Sub computes a - x and records the op.
func (b *Backend[B]) Sub(a, x *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer x.ForceNonUnique()()
	out := b.inner.Sub(a, x)
	if b.recordable(out) {
		b.tape.Record(ops.NewSubOp(a, x, out))
	}
	return out
}

// Mul computes a * x and records the op.
func (b *Backend[B]) Mul(a, x *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer x.ForceNonUnique()()
	out := b.inner.Mul(a, x)
	if b.recordable(out) {
		b.tape.Record(ops.NewMulOp(a, x, out))
	}
	return out
}

// Div computes a / x and records the op.
func (b *Backend[B]) Div(a, x *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer x.ForceNonUnique()()
	out := b.inner.Div(a, x)
	if b.recordable(out) {
		b.tape.Record(ops.NewDivOp(a, x, out))
	}
	return out
}

// AddScalar computes x + s and records the op.
func (b *Backend[B]) AddScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.AddScalar(x, s)
	if b.recordable(out) {
		b.tape.Record(ops.NewAddScalarOp(x, out))
	}
	return out
}

// MulScalar computes x * s and records the op.
func (b *Backend[B]) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.MulScalar(x, s)
	if b.recordable(out) {
		b.tape.Record(ops.NewMulScalarOp(x, out, s))
	}
	return out
}

// MatMul computes a @ x and records the op.
func (b *Backend[B]) MatMul(a, x *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer x.ForceNonUnique()()
	out := b.inner.MatMul(a, x)
	if b.recordable(out) {
		b.tape.Record(ops.NewMatMulOp(a, x, out))
	}
	return out
}

// Exp computes e^x and records the op.
func (b *Backend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.Exp(x)
	if b.recordable(out) {
		b.tape.Record(ops.NewExpOp(x, out))
	}
	return out
}

// Log computes ln(x) and records the op.
func (b *Backend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.Log(x)
	if b.recordable(out) {
		b.tape.Record(ops.NewLogOp(x, out))
	}
	return out
}

// Softmax normalizes along dim and records the op.
func (b *Backend[B]) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.Softmax(x, dim)
	if b.recordable(out) {
		d := dim
		if d < 0 {
			d += len(x.Shape())
		}
		b.tape.Record(ops.NewSoftmaxOp(x, out, d))
	}
	return out
}

// Sum reduces to a single element and records the op.
func (b *Backend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.Sum(x)
	if b.recordable(out) {
		b.tape.Record(ops.NewSumOp(x, out))
	}
	return out
}

// SumDim reduces along dim and records the op.
func (b *Backend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.SumDim(x, dim, keepDim)
	if b.recordable(out) {
		d := dim
		if d < 0 {
			d += len(x.Shape())
		}
		b.tape.Record(ops.NewSumDimOp(x, out, d))
	}
	return out
}

// Argmax delegates without recording: index extraction has no gradient.
func (b *Backend[B]) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	return b.inner.Argmax(x, dim)
}

// Reshape returns a view under the new shape and records the op.
func (b *Backend[B]) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.Reshape(x, shape)
	if b.recordable(out) {
		b.tape.Record(ops.NewReshapeOp(x, out))
	}
	return out
}

// Transpose permutes dimensions and records the op.
func (b *Backend[B]) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := b.inner.Transpose(x, axes...)
	if b.recordable(out) {
		full := axes
		if len(full) == 0 {
			rank := len(x.Shape())
			full = make([]int, rank)
			for i := range full {
				full[i] = rank - 1 - i
			}
		}
		b.tape.Record(ops.NewTransposeOp(x, out, full))
	}
	return out
}

// ReLU computes max(0, x) and records the op. The forward pass runs on
// the host: activations sit outside the core backend contract, and the
// saved input is what the backward pass needs anyway.
func (b *Backend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := ops.ReLUForward(x)
	if b.recordable(out) {
		b.tape.Record(ops.NewReLUOp(x, out))
	}
	return out
}

// Sigmoid computes σ(x) and records the op.
func (b *Backend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := ops.SigmoidForward(x)
	if b.recordable(out) {
		b.tape.Record(ops.NewSigmoidOp(x, out))
	}
	return out
}

// Tanh computes tanh(x) and records the op.
func (b *Backend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	out := ops.TanhForward(x)
	if b.recordable(out) {
		b.tape.Record(ops.NewTanhOp(x, out))
	}
	return out
}

// CrossEntropy computes the fused softmax + mean NLL loss and records
// the op. Targets are int32 class indices and receive no gradient.
func (b *Backend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	defer logits.ForceNonUnique()()
	defer targets.ForceNonUnique()()
	out := ops.CrossEntropyForward(logits, targets)
	if b.recordable(out) {
		b.tape.Record(ops.NewCrossEntropyOp(logits, targets, out))
	}
	return out
}
