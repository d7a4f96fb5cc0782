package nn

import (
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Activation capability interfaces. Activations sit outside the core
// backend contract; modules dispatch through these at runtime so any
// backend that provides the op (cpu, webgpu, or the autodiff
// decorator) can serve them.

// ReLUBackend is satisfied by backends providing ReLU.
type ReLUBackend interface {
	ReLU(*tensor.RawTensor) *tensor.RawTensor
}

// SigmoidBackend is satisfied by backends providing Sigmoid.
type SigmoidBackend interface {
	Sigmoid(*tensor.RawTensor) *tensor.RawTensor
}

// TanhBackend is satisfied by backends providing Tanh.
type TanhBackend interface {
	Tanh(*tensor.RawTensor) *tensor.RawTensor
}

// ReLU applies f(x) = max(0, x) element-wise.
type ReLU[B tensor.Backend] struct{}

// NewReLU creates a ReLU module.
func NewReLU[B tensor.Backend]() *ReLU[B] { return &ReLU[B]{} }

// Forward applies the activation.
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	rb, ok := any(backend).(ReLUBackend)
	if !ok {
		panic("ReLU: backend does not provide ReLU")
	}
	return tensor.New[float32](rb.ReLU(input.Raw()), backend)
}

// Parameters returns nil; ReLU is stateless.
func (r *ReLU[B]) Parameters() []*Parameter[B] { return nil }

// Sigmoid applies σ(x) = 1 / (1 + e^-x) element-wise.
type Sigmoid[B tensor.Backend] struct{}

// NewSigmoid creates a Sigmoid module.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] { return &Sigmoid[B]{} }

// Forward applies the activation.
func (s *Sigmoid[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	sb, ok := any(backend).(SigmoidBackend)
	if !ok {
		panic("Sigmoid: backend does not provide Sigmoid")
	}
	return tensor.New[float32](sb.Sigmoid(input.Raw()), backend)
}

// Parameters returns nil; Sigmoid is stateless.
func (s *Sigmoid[B]) Parameters() []*Parameter[B] { return nil }

// Tanh applies tanh(x) element-wise.
type Tanh[B tensor.Backend] struct{}

// NewTanh creates a Tanh module.
func NewTanh[B tensor.Backend]() *Tanh[B] { return &Tanh[B]{} }

// Forward applies the activation.
func (t *Tanh[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	tb, ok := any(backend).(TanhBackend)
	if !ok {
		panic("Tanh: backend does not provide Tanh")
	}
	return tensor.New[float32](tb.Tanh(input.Raw()), backend)
}

// Parameters returns nil; Tanh is stateless.
func (t *Tanh[B]) Parameters() []*Parameter[B] { return nil }

// Softmax normalizes along dim, usually the class dimension.
type Softmax[B tensor.Backend] struct {
	dim int
}

// NewSoftmax creates a Softmax module over dim (negative counts from
// the end).
func NewSoftmax[B tensor.Backend](dim int) *Softmax[B] { return &Softmax[B]{dim: dim} }

// Forward applies the normalization.
func (s *Softmax[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.Softmax(s.dim)
}

// Parameters returns nil; Softmax is stateless.
func (s *Softmax[B]) Parameters() []*Parameter[B] { return nil }
