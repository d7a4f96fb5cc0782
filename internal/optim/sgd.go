package optim

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum and
// L2 weight decay.
//
// Update rule:
//
//	g = grad + weightDecay * param
//	v = momentum * v + g
//	param = param - lr * v
//
// With zero momentum the velocity buffer is never allocated and the
// update reduces to param -= lr * g.
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  map[*nn.Parameter[B]][]float32
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR          float32 // learning rate (default 0.01)
	Momentum    float32 // momentum factor in [0, 1) (default 0)
	WeightDecay float32 // L2 penalty added to gradients (default 0)
}

// NewSGD creates an SGD optimizer over params.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter[B]][]float32),
	}
}

// Step applies one update to every unfrozen parameter that has a
// gradient in grads.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		if param.IsFrozen() {
			continue
		}
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		gradData := grad.AsFloat32()
		paramData := param.Tensor().Raw().AsFloat32()

		if s.momentum == 0 {
			for i := range paramData {
				g := gradData[i] + s.weightDecay*paramData[i]
				paramData[i] -= s.lr * g
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]float32, len(paramData))
			s.velocities[param] = velocity
		}
		for i := range paramData {
			g := gradData[i] + s.weightDecay*paramData[i]
			velocity[i] = s.momentum*velocity[i] + g
			paramData[i] -= s.lr * velocity[i]
		}
	}
}

// ZeroGrad clears the gradient slot of every parameter.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (s *SGD[B]) LR() float32 { return s.lr }

// SetLR overrides the learning rate.
func (s *SGD[B]) SetLR(lr float32) { s.lr = lr }

// Type returns "sgd".
func (s *SGD[B]) Type() string { return "sgd" }

// Config returns the hyperparameters for checkpoint metadata.
func (s *SGD[B]) Config() map[string]float64 {
	return map[string]float64{
		"lr":           float64(s.lr),
		"momentum":     float64(s.momentum),
		"weight_decay": float64(s.weightDecay),
	}
}

// StateDict exports momentum velocities under "velocity.{index}". With
// zero momentum the map is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return state
	}

	for i, param := range s.params {
		velocity, ok := s.velocities[param]
		if !ok {
			continue
		}
		state[fmt.Sprintf("velocity.%d", i)] = hostRaw(param.Tensor().Shape(), velocity)
	}
	return state
}

// LoadStateDict restores momentum velocities. Velocities absent from
// state stay unset and re-initialize to zero on the next Step.
func (s *SGD[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	s.velocities = make(map[*nn.Parameter[B]][]float32)
	for i, param := range s.params {
		raw, ok := state[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity shape mismatch for parameter %d: want %v, got %v",
				i, param.Tensor().Shape(), raw.Shape())
		}
		velocity := make([]float32, param.Tensor().Shape().NumElements())
		copy(velocity, raw.AsFloat32())
		s.velocities[param] = velocity
	}
	return nil
}
