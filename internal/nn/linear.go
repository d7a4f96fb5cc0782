package nn

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Linear is a fully connected layer computing y = x @ Wᵀ + b.
//
//	x: [batch, in]   W: [out, in]   b: [out]   y: [batch, out]
//
// Weights start from Xavier uniform, biases from zero.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewLinear creates a Linear layer.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, backend)
	bias := tensor.Zeros[float32](tensor.Shape{outFeatures}, backend)
	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
		backend:     backend,
	}
}

// Forward computes y = x @ Wᵀ + b for input [batch, in].
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: 2D input [batch, features] required, got %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: %d input features required, got %d", l.inFeatures, shape[1]))
	}

	out := input.MatMul(l.weight.Tensor().T())
	// Bias broadcasts as [1, out] across the batch.
	return out.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter [out, in].
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter [out].
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input width.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }

// StateDict exports the live weight and bias tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict copies weight and bias data in, validating shapes and
// dtypes.
func (l *Linear[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := loadParam(state, "weight", l.weight); err != nil {
		return err
	}
	return loadParam(state, "bias", l.bias)
}

// loadParam copies one named entry from a state dict into a parameter.
func loadParam[B tensor.Backend](state map[string]*tensor.RawTensor, name string, p *Parameter[B]) error {
	raw, ok := state[name]
	if !ok {
		return fmt.Errorf("state dict missing %q", name)
	}
	if !raw.Shape().Equal(p.Tensor().Shape()) {
		return fmt.Errorf("%s shape mismatch: want %v, got %v", name, p.Tensor().Shape(), raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: want float32, got %v", name, raw.DType())
	}
	copy(p.Tensor().Data(), raw.AsFloat32())
	return nil
}
