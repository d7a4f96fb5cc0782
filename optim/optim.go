// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/optim"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Optimizer updates parameters from the gradient map produced by
// autodiff.Backward.
type Optimizer = optim.Optimizer

// StatefulOptimizer is satisfied by optimizers with internal buffers
// worth checkpointing.
type StatefulOptimizer = optim.StatefulOptimizer

// Scheduler adjusts an optimizer's learning rate over training.
type Scheduler = optim.Scheduler

// SGD (Stochastic Gradient Descent)

// SGD implements stochastic gradient descent with optional momentum
// and weight decay.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig holds SGD hyperparameters.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer over params.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model := nn.NewLinear(784, 10, backend)
//	optimizer := optim.NewSGD(
//	    model.Parameters(),
//	    optim.SGDConfig{
//	        LR:       0.01,
//	        Momentum: 0.9,
//	    },
//	)
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	return optim.NewSGD(params, config)
}

// Adam (Adaptive Moment Estimation)

// Adam implements the Adam optimizer with bias correction.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig holds Adam hyperparameters.
type AdamConfig = optim.AdamConfig

// NewAdam creates an Adam optimizer over params.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model := nn.NewLinear(784, 10, backend)
//	optimizer := optim.NewAdam(
//	    model.Parameters(),
//	    optim.AdamConfig{
//	        LR:    0.001,
//	        Betas: [2]float32{0.9, 0.999},
//	        Eps:   1e-8,
//	    },
//	)
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	return optim.NewAdam(params, config)
}

// Learning-rate schedules

// StepLR multiplies the learning rate by gamma every stepSize steps.
type StepLR = optim.StepLR

// NewStepLR creates a StepLR schedule around opt. The base rate is the
// optimizer's rate at construction.
func NewStepLR(opt Optimizer, stepSize int, gamma float32) *StepLR {
	return optim.NewStepLR(opt, stepSize, gamma)
}

// CosineAnnealing decays the learning rate from the optimizer's base
// rate to etaMin along a half cosine over tMax steps.
type CosineAnnealing = optim.CosineAnnealing

// NewCosineAnnealing creates a cosine schedule around opt.
func NewCosineAnnealing(opt Optimizer, tMax int, etaMin float32) *CosineAnnealing {
	return optim.NewCosineAnnealing(opt, tMax, etaMin)
}

// OneCycle ramps the learning rate up to MaxLR and anneals it back
// down, both phases along cosines.
type OneCycle = optim.OneCycle

// OneCycleConfig holds the cycle shape. Zero values take defaults.
type OneCycleConfig = optim.OneCycleConfig

// NewOneCycle creates a one-cycle schedule around opt.
//
// Example:
//
//	scheduler := optim.NewOneCycle(optimizer, optim.OneCycleConfig{
//	    MaxLR:      0.01,
//	    TotalSteps: epochs * stepsPerEpoch,
//	})
func NewOneCycle(opt Optimizer, config OneCycleConfig) *OneCycle {
	return optim.NewOneCycle(opt, config)
}
