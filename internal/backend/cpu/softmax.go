package cpu

import (
	"fmt"
	"math"

	"github.com/anvil-ml/anvil/internal/parallel"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Softmax normalizes along dim (negative dims count from the end).
// The maximum is subtracted before exponentiation so large logits do
// not overflow.
func (c *Backend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu softmax: float32 required, got %v", x.DType()))
	}
	d := normDim("softmax", dim, len(x.Shape()))
	outer, dsize, inner := splitDims(x.Shape(), d)
	out := c.alloc("softmax", x.Shape().Clone(), tensor.Float32)

	src, dst := x.AsFloat32(), out.AsFloat32()
	parallel.For(outer*inner, func(oi int) {
		o, i := oi/inner, oi%inner
		base := o*dsize*inner + i

		maxV := src[base]
		for j := 1; j < dsize; j++ {
			if v := src[base+j*inner]; v > maxV {
				maxV = v
			}
		}

		var sum float64
		for j := 0; j < dsize; j++ {
			e := math.Exp(float64(src[base+j*inner] - maxV))
			dst[base+j*inner] = float32(e)
			sum += e
		}

		inv := float32(1.0 / sum)
		for j := 0; j < dsize; j++ {
			dst[base+j*inner] *= inv
		}
	}, c.pool)

	return out
}

// CrossEntropy computes the mean negative log-likelihood of int32 class
// targets under float32 logits [batch, classes], returning shape [1].
// Rows reduce through log-sum-exp so the result stays finite for any
// logit magnitude.
func (c *Backend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
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
			panic(fmt.Sprintf("cpu cross_entropy: target %d out of range for %d classes", t, classes))
		}
		total += lse - float64(row[t])
	}

	out := c.alloc("cross_entropy", tensor.Shape{1}, tensor.Float32)
	out.AsFloat32()[0] = float32(total / float64(batch))
	return out
}

func checkCrossEntropy(logits, targets *tensor.RawTensor) {
	if logits.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu cross_entropy: float32 logits required, got %v", logits.DType()))
	}
	if targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cpu cross_entropy: int32 targets required, got %v", targets.DType()))
	}
	if len(logits.Shape()) != 2 {
		panic(fmt.Sprintf("cpu cross_entropy: logits must be [batch, classes], got %v", logits.Shape()))
	}
	if len(targets.Shape()) != 1 || targets.Shape()[0] != logits.Shape()[0] {
		panic(fmt.Sprintf("cpu cross_entropy: targets must be [batch]=%d, got %v", logits.Shape()[0], targets.Shape()))
	}
}
