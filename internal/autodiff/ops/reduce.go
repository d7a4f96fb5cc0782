package ops

import "github.com/anvil-ml/anvil/internal/tensor"

// SumOp records output = sum(x), shape [1].
// The scalar gradient broadcasts back over the input shape.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: x, output: output}
}

func (op *SumOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := newFloat32(op.input.Shape().Clone(), op.input.Device())
	g := outputGrad.AsFloat32()[0]
	dst := grad.AsFloat32()
	for i := range dst {
		dst[i] = g
	}
	return []*tensor.RawTensor{grad}
}

func (op *SumOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SumOp) Output() *tensor.RawTensor  { return op.output }

// SumDimOp records output = sum(x, dim). The gradient replicates along
// the reduced dimension; keepDim only changes the output shape, not the
// element order, so one layout works for both.
type SumDimOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewSumDimOp creates a SumDimOp. dim must already be normalized.
func NewSumDimOp(x, output *tensor.RawTensor, dim int) *SumDimOp {
	return &SumDimOp{input: x, output: output, dim: dim}
}

func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	outer, dsize, inner := 1, shape[op.dim], 1
	for _, s := range shape[:op.dim] {
		outer *= s
	}
	for _, s := range shape[op.dim+1:] {
		inner *= s
	}

	grad := newFloat32(shape.Clone(), op.input.Device())
	g, dst := outputGrad.AsFloat32(), grad.AsFloat32()
	for o := 0; o < outer; o++ {
		for j := 0; j < dsize; j++ {
			base := (o*dsize + j) * inner
			gbase := o * inner
			for i := 0; i < inner; i++ {
				dst[base+i] = g[gbase+i]
			}
		}
	}
	return []*tensor.RawTensor{grad}
}

func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SumDimOp) Output() *tensor.RawTensor  { return op.output }
