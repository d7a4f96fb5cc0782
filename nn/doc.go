// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and building blocks.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, Dropout
//   - Activations: ReLU, Sigmoid, Tanh, Softmax
//   - Loss functions: CrossEntropyLoss, MSELoss
//   - Utilities: Sequential, Module interface, Parameter
//   - Initialization: Xavier, Kaiming, Zeros, Ones, Randn
//
// # Basic Usage
//
//	import (
//	    "github.com/anvil-ml/anvil/nn"
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // Build a simple MLP
//	    model := nn.NewSequential(
//	        nn.NewLinear(784, 128, backend),
//	        nn.NewReLU[*cpu.Backend](),
//	        nn.NewLinear(128, 10, backend),
//	    )
//
//	    // Forward pass
//	    output := model.Forward(input)
//	}
//
// # Loss Functions
//
// CrossEntropyLoss: For classification tasks (numerically stable)
//
//	criterion := nn.NewCrossEntropyLoss(backend)
//	loss := criterion.Forward(logits, labels)
//
// MSELoss: For regression tasks
//
//	criterion := nn.NewMSELoss[B]()
//	loss := criterion.Forward(predictions, targets)
//
// # Train and Eval Modes
//
// Modules with distinct behavior per phase (Dropout) implement
// TrainEvalModule; SetTraining flips a whole model tree:
//
//	nn.SetTraining(model, true)  // training: dropout active
//	nn.SetTraining(model, false) // eval: dropout is identity
//
// The train package calls this automatically around its passes.
//
// # Parameter Management
//
// Access model parameters for optimization:
//
//	params := model.Parameters()
//	for _, param := range params {
//	    fmt.Println(param.Name(), param.Tensor().Shape())
//	}
package nn
