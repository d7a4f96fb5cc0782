package ops

import (
	"fmt"
	"math"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// CrossEntropyForward computes the mean negative log-likelihood of
// int32 class targets under float32 logits [batch, classes], returning
// shape [1]. Rows reduce through log-sum-exp so large logits stay
// finite.
func CrossEntropyForward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	checkCrossEntropy(logits, targets)

	batch, classes := logits.Shape()[0], logits.Shape()[1]
	src, tgt := logits.AsFloat32(), targets.AsInt32()

	var total float64
	for b := 0; b < batch; b++ {
		row := src[b*classes : (b+1)*classes]

		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxV))
		}
		lse := float64(maxV) + math.Log(sum)

		t := tgt[b]
		if t < 0 || int(t) >= classes {
			panic(fmt.Sprintf("autodiff cross_entropy: target %d out of range for %d classes", t, classes))
		}
		total += lse - float64(row[t])
	}

	out := newFloat32(tensor.Shape{1}, logits.Device())
	out.AsFloat32()[0] = float32(total / float64(batch))
	return out
}

// CrossEntropyOp is the fused softmax + NLL node. Fusing gives the
// closed-form gradient
//
//	grad_logits[b,i] = g * (softmax(logits[b])[i] - 1{i == target[b]}) / batch
//
// which avoids materializing the softmax during the forward pass.
// Targets receive no gradient.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	batch, classes := op.logits.Shape()[0], op.logits.Shape()[1]
	grad := newFloat32(op.logits.Shape().Clone(), op.logits.Device())

	src, tgt, dst := op.logits.AsFloat32(), op.targets.AsInt32(), grad.AsFloat32()
	scale := outputGrad.AsFloat32()[0] / float32(batch)

	for b := 0; b < batch; b++ {
		row := src[b*classes : (b+1)*classes]
		out := dst[b*classes : (b+1)*classes]

		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - maxV))
			out[j] = float32(e)
			sum += e
		}
		inv := float32(1.0 / sum)

		t := int(tgt[b])
		for j := range out {
			p := out[j] * inv
			if j == t {
				p -= 1
			}
			out[j] = scale * p
		}
	}
	return []*tensor.RawTensor{grad}
}

func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.logits} }
func (op *CrossEntropyOp) Output() *tensor.RawTensor  { return op.output }

func checkCrossEntropy(logits, targets *tensor.RawTensor) {
	if logits.DType() != tensor.Float32 {
		panic(fmt.Sprintf("autodiff cross_entropy: float32 logits required, got %v", logits.DType()))
	}
	if targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("autodiff cross_entropy: int32 targets required, got %v", targets.DType()))
	}
	if len(logits.Shape()) != 2 {
		panic(fmt.Sprintf("autodiff cross_entropy: logits must be [batch, classes], got %v", logits.Shape()))
	}
	if len(targets.Shape()) != 1 || targets.Shape()[0] != logits.Shape()[0] {
		panic(fmt.Sprintf("autodiff cross_entropy: targets must be [batch]=%d, got %v", logits.Shape()[0], targets.Shape()))
	}
}
