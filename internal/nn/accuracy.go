package nn

import (
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Accuracy computes the fraction of rows where the argmax of the
// logits matches the target class. Logits are [batch, classes],
// targets are [batch] class indices.
func Accuracy[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) float32 {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic("Accuracy: logits must be 2D [batch, classes]")
	}
	if shape[0] == 0 {
		return 0
	}

	preds := logits.Argmax(-1).Data()
	targetsData := targets.Data()
	if len(preds) != len(targetsData) {
		panic("Accuracy: logits batch and targets length differ")
	}

	correct := 0
	for i, p := range preds {
		if p == targetsData[i] {
			correct++
		}
	}
	return float32(correct) / float32(len(preds))
}
