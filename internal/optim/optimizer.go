// Package optim implements optimization algorithms and learning-rate
// schedules for training.
//
// Optimizers consume the gradient map produced by autodiff.Backward and
// update parameters in place:
//
//	grads := autodiff.Backward(loss, backend)
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
//
// Updates run on host views of the parameter buffers rather than
// through backend ops, so a Step never lands on a recording tape.
// Frozen parameters are skipped by every optimizer.
package optim

import (
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Optimizer updates parameters from a gradient map.
type Optimizer interface {
	// Step applies one update from grads, keyed by parameter raw tensor.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears the gradient slot of every parameter.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32

	// SetLR overrides the learning rate; schedulers call this.
	SetLR(lr float32)
}

// StatefulOptimizer is satisfied by optimizers with internal buffers
// worth checkpointing (momentum velocities, moment estimates).
type StatefulOptimizer interface {
	Optimizer

	// Type identifies the algorithm ("sgd", "adam") in checkpoint
	// metadata.
	Type() string

	// Config returns the hyperparameters for checkpoint metadata.
	Config() map[string]float64

	// StateDict exports internal buffers keyed by buffer name and
	// parameter index, e.g. "velocity.0".
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores internal buffers. A missing key leaves the
	// corresponding buffer to lazy initialization on the next Step.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// getGradient looks up the gradient recorded for a parameter, nil when
// the parameter did not participate in the forward pass.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
