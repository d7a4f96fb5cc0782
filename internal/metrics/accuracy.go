package metrics

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Accuracy counts element-wise label matches across batches.
type Accuracy struct {
	settings
	correct int
	total   int
}

// NewAccuracy creates an accuracy metric. By default predictions are
// score tensors and targets are labels.
func NewAccuracy(opts ...Option) *Accuracy {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Accuracy{settings: s}
}

// Name returns "accuracy".
func (a *Accuracy) Name() string { return "accuracy" }

// Reset clears the counts.
func (a *Accuracy) Reset() {
	a.correct = 0
	a.total = 0
}

// Update folds one batch into the counts.
func (a *Accuracy) Update(preds, targets *tensor.RawTensor) {
	p := labels(preds, a.argmaxPreds, 0)
	t := labels(targets, a.argmaxTargets, 0)
	if len(p) != len(t) {
		panic(fmt.Sprintf("metrics: %d predictions vs %d targets", len(p), len(t)))
	}

	for i := range p {
		if p[i] == t[i] {
			a.correct++
		}
	}
	a.total += len(p)
}

// Compute returns the running accuracy in [0, 1].
func (a *Accuracy) Compute() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}
