// Package nn implements neural network building blocks: the Module
// interface, trainable parameters, layers, activations, losses and
// weight initialization.
//
// Modules compose into models:
//
//	model := nn.NewSequential[B](
//	    nn.NewLinear(784, 128, backend),
//	    nn.NewReLU[B](),
//	    nn.NewDropout[B](0.2),
//	    nn.NewLinear(128, 10, backend),
//	)
package nn

import (
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Module is the base interface for all network components.
type Module[B tensor.Backend] interface {
	// Forward computes the module's output for the given input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, including those of
	// nested modules. Modules without parameters return nil.
	Parameters() []*Parameter[B]
}

// TrainEvalModule is implemented by modules whose behavior differs
// between training and evaluation, such as Dropout. Containers
// implement it by forwarding to their children.
type TrainEvalModule interface {
	SetTraining(training bool)
}

// Stateful is implemented by modules that can export and restore their
// parameters as named raw tensors. Checkpointing and snapshots build
// on it.
type Stateful interface {
	// StateDict returns parameter names mapped to their live raw
	// tensors (not copies).
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies matching entries into the module's
	// parameters, validating names, shapes and dtypes.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// SetTraining switches training mode on m if it cares about the
// distinction. Containers propagate the call to nested modules.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	if te, ok := any(m).(TrainEvalModule); ok {
		te.SetTraining(training)
	}
}

// Freeze marks every parameter of m as frozen so optimizers skip it.
// Typical use is transfer learning: freeze a pretrained trunk and train
// only the head.
func Freeze[B tensor.Backend](m Module[B]) {
	for _, p := range m.Parameters() {
		p.Freeze()
	}
}

// Unfreeze clears the frozen flag on every parameter of m.
func Unfreeze[B tensor.Backend](m Module[B]) {
	for _, p := range m.Parameters() {
		p.Unfreeze()
	}
}

// DetachAll returns detached views of every parameter tensor of m, in
// Parameters() order. Useful for reading weights out of a module
// without extending its gradient history.
func DetachAll[B tensor.Backend](m Module[B]) []*tensor.Tensor[float32, B] {
	params := m.Parameters()
	out := make([]*tensor.Tensor[float32, B], len(params))
	for i, p := range params {
		out[i] = p.Tensor().Detach()
	}
	return out
}
