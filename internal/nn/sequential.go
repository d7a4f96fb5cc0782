package nn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Sequential chains modules so each output feeds the next input.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a Sequential container from the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward applies all modules in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := input
	for _, m := range s.modules {
		out = m.Forward(out)
	}
	return out
}

// Parameters collects the parameters of every module in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Add appends a module to the chain.
func (s *Sequential[B]) Add(m Module[B]) {
	s.modules = append(s.modules, m)
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int { return len(s.modules) }

// Module returns the module at index, panicking when out of range.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of range")
	}
	return s.modules[index]
}

// SetTraining propagates training mode to every nested module.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, m := range s.modules {
		if te, ok := any(m).(TrainEvalModule); ok {
			te.SetTraining(training)
		}
	}
}

// StateDict exports nested state with index prefixes ("0.weight",
// "0.bias", "2.weight", ...). Stateless modules contribute nothing.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, m := range s.modules {
		st, ok := any(m).(Stateful)
		if !ok {
			continue
		}
		for name, raw := range st.StateDict() {
			state[strconv.Itoa(i)+"."+name] = raw
		}
	}
	return state
}

// LoadStateDict distributes index-prefixed entries to the nested
// modules.
func (s *Sequential[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for i, m := range s.modules {
		st, ok := any(m).(Stateful)
		if !ok {
			continue
		}
		prefix := strconv.Itoa(i) + "."
		sub := make(map[string]*tensor.RawTensor)
		for name, raw := range state {
			if strings.HasPrefix(name, prefix) {
				sub[strings.TrimPrefix(name, prefix)] = raw
			}
		}
		if err := st.LoadStateDict(sub); err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
	}
	return nil
}
