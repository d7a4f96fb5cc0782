package nn

import (
	"fmt"
	"math/rand"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Dropout randomly zeroes elements during training with probability p
// and scales the survivors by 1/(1-p), so the expected activation is
// unchanged and evaluation needs no rescaling (inverted dropout).
//
// The mask is applied through the backend's Mul, so gradients flow
// through the surviving elements when recording is on.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
}

// NewDropout creates a Dropout module with drop probability p in [0, 1).
// Modules start in training mode.
func NewDropout[B tensor.Backend](p float32) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: p must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p, training: true}
}

// Forward masks the input in training mode and passes it through
// untouched in evaluation mode.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	keep := 1 / (1 - d.p)
	mask := tensor.Zeros[float32](input.Shape(), input.Backend())
	data := mask.Data()
	for i := range data {
		//nolint:gosec // math/rand for dropout masks (not security-critical)
		if rand.Float32() >= d.p {
			data[i] = keep
		}
	}
	return input.Mul(mask)
}

// Parameters returns nil; Dropout is stateless.
func (d *Dropout[B]) Parameters() []*Parameter[B] { return nil }

// SetTraining toggles between masking (true) and identity (false).
func (d *Dropout[B]) SetTraining(training bool) { d.training = training }

// IsTraining reports whether the module currently masks its input.
func (d *Dropout[B]) IsTraining() bool { return d.training }

// P returns the drop probability.
func (d *Dropout[B]) P() float32 { return d.p }
