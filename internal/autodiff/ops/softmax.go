package ops

import "github.com/anvil-ml/anvil/internal/tensor"

// SoftmaxOp records output = softmax(x, dim).
//
// With y the saved output and g the output gradient:
//
//	grad_x = y * (g - sum(g * y, dim, keep))
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewSoftmaxOp creates a SoftmaxOp. dim must already be normalized to
// [0, rank).
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{input: x, output: output, dim: dim}
}

func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gy := backend.Mul(outputGrad, op.output)
	dot := backend.SumDim(gy, op.dim, true)
	grad := backend.Mul(op.output, backend.Sub(outputGrad, dot))
	return []*tensor.RawTensor{grad}
}

func (op *SoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SoftmaxOp) Output() *tensor.RawTensor  { return op.output }
