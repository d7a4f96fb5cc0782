package optim

import (
	"fmt"
	"math"

	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Adam implements adaptive moment estimation (Kingma & Ba, 2014).
//
// Update rule:
//
//	m = beta1 * m + (1-beta1) * grad        // first moment
//	v = beta2 * v + (1-beta2) * grad²       // second moment
//	mHat = m / (1 - beta1^t)                // bias correction
//	vHat = v / (1 - beta2^t)
//	param = param - lr * mHat / (sqrt(vHat) + eps)
//
// Example:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{
//	    LR: 0.001,
//	})
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int
	m      map[*nn.Parameter[B]][]float32
	v      map[*nn.Parameter[B]][]float32
}

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LR    float32    // learning rate (default 0.001)
	Betas [2]float32 // moving-average coefficients (default [0.9, 0.999])
	Eps   float32    // denominator stabilizer (default 1e-8)
}

// NewAdam creates an Adam optimizer over params.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter[B]][]float32),
		v:      make(map[*nn.Parameter[B]][]float32),
	}
}

// Step applies one bias-corrected update to every unfrozen parameter
// that has a gradient in grads.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		if param.IsFrozen() {
			continue
		}
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		gradData := grad.AsFloat32()
		paramData := param.Tensor().Raw().AsFloat32()

		m, ok := a.m[param]
		if !ok {
			m = make([]float32, len(paramData))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, len(paramData))
			a.v[param] = v
		}

		for i := range paramData {
			g := gradData[i]
			m[i] = a.beta1*m[i] + (1.0-a.beta1)*g
			v[i] = a.beta2*v[i] + (1.0-a.beta2)*g*g

			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears the gradient slot of every parameter.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (a *Adam[B]) LR() float32 { return a.lr }

// SetLR overrides the learning rate.
func (a *Adam[B]) SetLR(lr float32) { a.lr = lr }

// Timestep returns the number of steps taken, the t in the bias
// correction terms.
func (a *Adam[B]) Timestep() int { return a.t }

// Type returns "adam".
func (a *Adam[B]) Type() string { return "adam" }

// Config returns the hyperparameters for checkpoint metadata.
func (a *Adam[B]) Config() map[string]float64 {
	return map[string]float64{
		"lr":    float64(a.lr),
		"beta1": float64(a.beta1),
		"beta2": float64(a.beta2),
		"eps":   float64(a.eps),
	}
}

// StateDict exports moment buffers under "m.{index}" / "v.{index}" and
// the timestep under "step".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)

	step, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("adam state: %v", err))
	}
	step.AsFloat32()[0] = float32(a.t)
	state["step"] = step

	for i, param := range a.params {
		atName := func(prefix string) string { return fmt.Sprintf("%s.%d", prefix, i) }
		if m, ok := a.m[param]; ok {
			state[atName("m")] = hostRaw(param.Tensor().Shape(), m)
		}
		if v, ok := a.v[param]; ok {
			state[atName("v")] = hostRaw(param.Tensor().Shape(), v)
		}
	}
	return state
}

// LoadStateDict restores moment buffers and the timestep. Buffers
// absent from state stay unset and re-initialize to zero on the next
// Step.
func (a *Adam[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if step, ok := state["step"]; ok {
		a.t = int(step.AsFloat32()[0])
	}

	a.m = make(map[*nn.Parameter[B]][]float32)
	a.v = make(map[*nn.Parameter[B]][]float32)
	for i, param := range a.params {
		shape := param.Tensor().Shape()
		if raw, ok := state[fmt.Sprintf("m.%d", i)]; ok {
			if !raw.Shape().Equal(shape) {
				return fmt.Errorf("m shape mismatch for parameter %d: want %v, got %v", i, shape, raw.Shape())
			}
			m := make([]float32, shape.NumElements())
			copy(m, raw.AsFloat32())
			a.m[param] = m
		}
		if raw, ok := state[fmt.Sprintf("v.%d", i)]; ok {
			if !raw.Shape().Equal(shape) {
				return fmt.Errorf("v shape mismatch for parameter %d: want %v, got %v", i, shape, raw.Shape())
			}
			v := make([]float32, shape.NumElements())
			copy(v, raw.AsFloat32())
			a.v[param] = v
		}
	}
	return nil
}

// hostRaw copies a host buffer into a fresh CPU raw tensor.
func hostRaw(shape tensor.Shape, data []float32) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("optim state: %v", err))
	}
	copy(raw.AsFloat32(), data)
	return raw
}
