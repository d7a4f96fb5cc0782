// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms and learning-rate
// schedules for training neural networks.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum and weight decay
//   - Adam: Adaptive Moment Estimation with bias correction
//   - StepLR, CosineAnnealing, OneCycle: learning-rate schedules
//   - Optimizer and Scheduler interfaces for custom implementations
//
// # Basic Usage
//
//	import (
//	    "github.com/anvil-ml/anvil/optim"
//	    "github.com/anvil-ml/anvil/nn"
//	    "github.com/anvil-ml/anvil/autodiff"
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    model := nn.NewLinear(784, 10, backend)
//
//	    // Create optimizer
//	    optimizer := optim.NewAdam(
//	        model.Parameters(),
//	        optim.AdamConfig{
//	            LR:    0.001,
//	            Betas: [2]float32{0.9, 0.999},
//	        },
//	    )
//
//	    // Training loop
//	    for epoch := range 10 {
//	        // Forward pass
//	        loss := criterion.Forward(model.Forward(x), y)
//
//	        // Backward pass
//	        optimizer.ZeroGrad()
//	        grads := autodiff.Backward(loss, backend)
//	        optimizer.Step(grads)
//	    }
//	}
//
// # Optimizers
//
// SGD (Stochastic Gradient Descent):
//
//	optimizer := optim.NewSGD(
//	    model.Parameters(),
//	    optim.SGDConfig{
//	        LR:       0.01,
//	        Momentum: 0.9,
//	    },
//	)
//
// Adam (Adaptive Moment Estimation):
//
//	optimizer := optim.NewAdam(
//	    model.Parameters(),
//	    optim.AdamConfig{
//	        LR:    0.001,
//	        Betas: [2]float32{0.9, 0.999},
//	        Eps:   1e-8,
//	    },
//	)
//
// # Learning-Rate Schedules
//
// Schedules wrap an optimizer and rewrite its rate once per optimizer
// step:
//
//	scheduler := optim.NewOneCycle(optimizer, optim.OneCycleConfig{
//	    MaxLR:      0.01,
//	    TotalSteps: epochs * stepsPerEpoch,
//	})
//
//	for batch := range batches {
//	    // ... forward, backward, optimizer.Step(grads) ...
//	    scheduler.Step()
//	}
//
// Schedules that think in epochs (StepLR, CosineAnnealing) take step
// counts, so multiply by the number of batches per epoch.
//
// # Checkpointing
//
// Both optimizers implement StatefulOptimizer: their internal buffers
// (SGD velocities, Adam moment estimates) export through StateDict and
// restore through LoadStateDict, so a resumed run continues with warm
// optimizer state.
package optim
