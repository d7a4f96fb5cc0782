// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train provides the event-driven training loop: a Learner that
// owns model, optimizer and loss, fires named events at fixed points of
// the fit cycle, and lets callbacks observe and steer the run.
//
// # Overview
//
// This package contains:
//   - Learner: the training loop with replaceable stages
//   - Event hooks (BeforeFit ... AfterFit) and the Callback contract
//   - Stock callbacks: Logger, Checkpointer, SaveBest, EarlyStopper,
//     StopFile, MetricCallback
//   - FindLR: the exponential learning-rate range test
//   - History: named metric series recorded during the run
//
// # Basic Usage
//
//	import (
//	    "github.com/anvil-ml/anvil/autodiff"
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	    "github.com/anvil-ml/anvil/data"
//	    "github.com/anvil-ml/anvil/nn"
//	    "github.com/anvil-ml/anvil/optim"
//	    "github.com/anvil-ml/anvil/train"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//
//	    model := nn.NewSequential(
//	        nn.NewLinear(2, 16, backend),
//	        nn.NewReLU[*autodiff.Backend[*cpu.Backend]](),
//	        nn.NewLinear(16, 3, backend),
//	    )
//	    optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1})
//	    criterion := nn.NewCrossEntropyLoss(backend)
//
//	    learner := train.NewLearner(model, optimizer, criterion.Forward, backend,
//	        train.WithCallbacks[*autodiff.Backend[*cpu.Backend]](
//	            train.NewLogger[*autodiff.Backend[*cpu.Backend]](log, 50),
//	        ),
//	    )
//	    err := learner.Fit(ctx, 10, trainLoader, validLoader)
//	}
//
// # Events and Callbacks
//
// The loop fires eleven events per the fit cycle. A callback implements
// Name() plus the handler interfaces for the events it cares about; the
// Learner detects handlers at registration:
//
//	type clipper struct{}
//
//	func (clipper) Name() string { return "grad_clipper" }
//
//	func (clipper) OnAfterBackward(l *train.Learner[B]) error {
//	    // inspect or rescale l.Grads here
//	    return nil
//	}
//
// Handlers return nil to continue, a cancellation sentinel to abort the
// enclosing scope (ErrCancelBatch, ErrCancelEpoch, ErrCancelFit), or any
// other error to fail the fit.
//
// # Stages
//
// The loop's own phases (forward, loss, backward, step, ...) dispatch
// through a stage table and can be rebound one at a time:
//
//	learner.Bind(train.StageLoss, func(ctx context.Context, l *train.Learner[B]) error {
//	    l.Loss = myLoss(l.Pred, l.Y)
//	    return nil
//	})
//
// Rebinding a stage keeps the event protocol intact, so the stock
// callbacks keep working around the replaced phase.
package train
