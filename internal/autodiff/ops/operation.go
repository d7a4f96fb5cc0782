// Package ops defines the differentiable operations recorded on the
// gradient tape. Each op keeps the raw tensors of its forward pass and
// knows how to turn an output gradient into input gradients.
package ops

import "github.com/anvil-ml/anvil/internal/tensor"

// Operation is one node of the recorded computation graph.
type Operation interface {
	// Backward computes gradients for the inputs given the output
	// gradient, in input order. A nil entry means no gradient flows
	// to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the tensors gradients flow to.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by the forward pass.
	Output() *tensor.RawTensor
}
