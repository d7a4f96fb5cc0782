package nn

import (
	"math"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// CrossEntropyBackend is satisfied by backends providing a fused
// cross-entropy: float32 logits [batch, classes], int32 class indices
// [batch], scalar mean loss out.
type CrossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// MSELoss computes mean squared error: mean((predictions - targets)²).
//
// The reduction is composed entirely from backend ops (Sub, Mul, Sum,
// MulScalar), so when the backend records a tape the loss is fully
// differentiable back to the predictions.
type MSELoss[B tensor.Backend] struct{}

// NewMSELoss creates an MSE loss function.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return &MSELoss[B]{}
}

// Forward computes the loss. Predictions and targets must share a
// shape; the result has shape [1].
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic("MSELoss: predictions and targets must have the same shape")
	}

	diff := predictions.Sub(targets)
	squared := diff.Mul(diff)
	n := predictions.Shape().NumElements()
	return squared.Sum().MulScalar(1 / float64(n))
}

// Parameters returns nil; loss functions have no trainable parameters.
func (m *MSELoss[B]) Parameters() []*Parameter[B] { return nil }

// CrossEntropyLoss computes mean negative log-likelihood over a batch
// of raw logits and int32 class indices.
//
// Backends providing CrossEntropy get the fused path, which keeps the
// op on the tape as a single node with the softmax-minus-onehot
// backward. Other backends fall back to a host log-sum-exp, which is
// numerically stable but not differentiable.
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates a cross-entropy loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{backend: backend}
}

// Forward computes the loss. Logits are [batch, classes], targets are
// [batch] class indices; the result has shape [1].
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	if ceb, ok := any(c.backend).(CrossEntropyBackend); ok {
		return tensor.New[float32, B](ceb.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
	}

	shape := logits.Shape()
	if len(shape) != 2 {
		panic("CrossEntropyLoss: logits must be 2D [batch, classes]")
	}
	batch, classes := shape[0], shape[1]

	targetsData := targets.Data()
	if len(targetsData) != batch {
		panic("CrossEntropyLoss: targets must have shape [batch]")
	}

	logitsData := logits.Raw().AsFloat32()
	var total float64
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		target := int(targetsData[b])
		if target < 0 || target >= classes {
			panic("CrossEntropyLoss: target index out of range")
		}
		total -= float64(logSoftmax(row)[target])
	}

	lossRaw, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, c.backend.Device())
	if err != nil {
		panic(err)
	}
	lossRaw.AsFloat32()[0] = float32(total / float64(batch))
	return tensor.New[float32, B](lossRaw, c.backend)
}

// Parameters returns nil; loss functions have no trainable parameters.
func (c *CrossEntropyLoss[B]) Parameters() []*Parameter[B] { return nil }

// logSoftmax computes log(softmax(z)) with the log-sum-exp trick.
func logSoftmax(z []float32) []float32 {
	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}

	var sumExp float64
	for _, v := range z {
		sumExp += math.Exp(float64(v - maxZ))
	}
	logSumExp := maxZ + float32(math.Log(sumExp))

	result := make([]float32, len(z))
	for i, v := range z {
		result[i] = v - logSumExp
	}
	return result
}
