package nn

import (
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Parameter is a trainable tensor with an optional gradient slot and a
// frozen flag. Frozen parameters still participate in the forward pass
// but optimizers leave them untouched.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
	frozen bool
}

// NewParameter wraps an initialized tensor as a trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name, e.g. "weight".
func (p *Parameter[B]) Name() string { return p.name }

// Tensor returns the live parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

// Grad returns the gradient tensor, or nil before the first backward
// pass (and after ZeroGrad).
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] { return p.grad }

// SetGrad stores a gradient, typically from the optimizer step.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) { p.grad = grad }

// ZeroGrad drops the stored gradient.
func (p *Parameter[B]) ZeroGrad() { p.grad = nil }

// Freeze excludes this parameter from optimizer updates.
func (p *Parameter[B]) Freeze() { p.frozen = true }

// Unfreeze re-enables optimizer updates.
func (p *Parameter[B]) Unfreeze() { p.frozen = false }

// IsFrozen reports whether optimizer updates are disabled.
func (p *Parameter[B]) IsFrozen() bool { return p.frozen }
