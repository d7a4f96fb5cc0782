// Package metrics provides evaluation metrics that accumulate over
// batches: Accuracy for classification, Dice/GeneralizedDice/IoU for
// overlap-style evaluation of dense predictions.
//
// Metrics compute on host views of the tensors. Predictions default to
// score tensors with the class dimension at dim 1 ([batch, classes] or
// [batch, classes, spatial...]) and are argmaxed; targets default to
// integer class labels. Options flip either convention.
//
//	m := metrics.NewDice(3, metrics.WithoutBackground())
//	for batch := range loader {
//	    m.Update(preds.Raw(), batch.Y.Raw())
//	}
//	score := m.Compute()
package metrics

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Metric accumulates batch statistics and reduces them to one scalar.
type Metric interface {
	// Name identifies the metric in history series and logs.
	Name() string

	// Reset clears accumulated state, typically at epoch boundaries.
	Reset()

	// Update folds one batch of predictions and targets into the
	// accumulator. Panics on dtype or label-range misuse.
	Update(preds, targets *tensor.RawTensor)

	// Compute reduces the accumulated state. Zero accumulated elements
	// compute to 0.
	Compute() float64
}

type settings struct {
	argmaxPreds   bool
	argmaxTargets bool
	skipBG        bool
}

func defaultSettings() settings {
	return settings{argmaxPreds: true}
}

// Option adjusts how a metric reads its inputs.
type Option func(*settings)

// WithPredLabels treats predictions as class labels instead of score
// tensors needing an argmax.
func WithPredLabels() Option {
	return func(s *settings) { s.argmaxPreds = false }
}

// WithTargetScores treats targets as score tensors with a class
// dimension instead of integer labels.
func WithTargetScores() Option {
	return func(s *settings) { s.argmaxTargets = true }
}

// WithoutBackground drops class 0 from the reduction; overlap metrics
// on segmentation-style data usually want this.
func WithoutBackground() Option {
	return func(s *settings) { s.skipBG = true }
}

// labels extracts flat class labels from raw, argmaxing over the class
// dimension when argmax is set.
func labels(raw *tensor.RawTensor, argmax bool, classes int) []int {
	if argmax {
		return hostArgmax(raw, classes)
	}

	switch raw.DType() {
	case tensor.Int32:
		src := raw.AsInt32()
		out := make([]int, len(src))
		for i, v := range src {
			out[i] = int(v)
		}
		return out
	case tensor.Float32:
		src := raw.AsFloat32()
		out := make([]int, len(src))
		for i, v := range src {
			out[i] = int(v)
		}
		return out
	default:
		panic(fmt.Sprintf("metrics: labels need int32 or float32, got %v", raw.DType()))
	}
}

// hostArgmax reduces the class dimension (dim 1) of a float32 score
// tensor to labels ordered by (batch, spatial...).
func hostArgmax(raw *tensor.RawTensor, classes int) []int {
	if raw.DType() != tensor.Float32 {
		panic(fmt.Sprintf("metrics: argmax needs float32 scores, got %v", raw.DType()))
	}
	shape := raw.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("metrics: scores need a class dimension, got shape %v", shape))
	}
	if classes > 0 && shape[1] != classes {
		panic(fmt.Sprintf("metrics: scores have %d classes, metric configured for %d", shape[1], classes))
	}

	c := shape[1]
	inner := 1
	for _, d := range shape[2:] {
		inner *= d
	}
	outer := shape[0]

	data := raw.AsFloat32()
	out := make([]int, outer*inner)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			best, bestVal := 0, data[o*c*inner+i]
			for k := 1; k < c; k++ {
				if v := data[(o*c+k)*inner+i]; v > bestVal {
					best, bestVal = k, v
				}
			}
			out[o*inner+i] = best
		}
	}
	return out
}
