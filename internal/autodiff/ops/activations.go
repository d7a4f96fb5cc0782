package ops

import (
	"math"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// ReLUForward computes max(0, x) into a fresh tensor.
func ReLUForward(x *tensor.RawTensor) *tensor.RawTensor {
	mustFloat32("relu", x)
	out := newFloat32(x.Shape().Clone(), x.Device())
	src, dst := x.AsFloat32(), out.AsFloat32()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return out
}

// SigmoidForward computes 1 / (1 + e^-x) into a fresh tensor.
func SigmoidForward(x *tensor.RawTensor) *tensor.RawTensor {
	mustFloat32("sigmoid", x)
	out := newFloat32(x.Shape().Clone(), x.Device())
	src, dst := x.AsFloat32(), out.AsFloat32()
	for i, v := range src {
		dst[i] = float32(1.0 / (1.0 + math.Exp(-float64(v))))
	}
	return out
}

// TanhForward computes tanh(x) into a fresh tensor.
func TanhForward(x *tensor.RawTensor) *tensor.RawTensor {
	mustFloat32("tanh", x)
	out := newFloat32(x.Shape().Clone(), x.Device())
	src, dst := x.AsFloat32(), out.AsFloat32()
	for i, v := range src {
		dst[i] = float32(math.Tanh(float64(v)))
	}
	return out
}

// ReLUOp records output = max(0, x).
// grad_x = g where x > 0, else 0.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a ReLUOp.
func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: x, output: output}
}

func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := newFloat32(op.input.Shape().Clone(), op.input.Device())
	src, g, dst := op.input.AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
	for i, v := range src {
		if v > 0 {
			dst[i] = g[i]
		}
	}
	return []*tensor.RawTensor{grad}
}

func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ReLUOp) Output() *tensor.RawTensor  { return op.output }

// SigmoidOp records output = σ(x).
// grad_x = g * σ(x) * (1 - σ(x)), read from the saved output.
type SigmoidOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSigmoidOp creates a SigmoidOp.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{input: x, output: output}
}

func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := newFloat32(op.input.Shape().Clone(), op.input.Device())
	y, g, dst := op.output.AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
	for i := range dst {
		dst[i] = g[i] * y[i] * (1 - y[i])
	}
	return []*tensor.RawTensor{grad}
}

func (op *SigmoidOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SigmoidOp) Output() *tensor.RawTensor  { return op.output }

// TanhOp records output = tanh(x).
// grad_x = g * (1 - tanh²(x)), read from the saved output.
type TanhOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTanhOp creates a TanhOp.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{input: x, output: output}
}

func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := newFloat32(op.input.Shape().Clone(), op.input.Device())
	y, g, dst := op.output.AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
	for i := range dst {
		dst[i] = g[i] * (1 - y[i]*y[i])
	}
	return []*tensor.RawTensor{grad}
}

func (op *TanhOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *TanhOp) Output() *tensor.RawTensor  { return op.output }
