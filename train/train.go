// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"context"

	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/metrics"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/optim"
	"github.com/anvil-ml/anvil/internal/tensor"
	"github.com/anvil-ml/anvil/internal/train"
)

// Event names a hook point fired at a fixed place in the loop.
type Event = train.Event

// Lifecycle events, in the order the loop reaches them.
const (
	BeforeFit      = train.BeforeFit
	BeforeEpoch    = train.BeforeEpoch
	BeforeBatch    = train.BeforeBatch
	AfterPred      = train.AfterPred
	AfterLoss      = train.AfterLoss
	BeforeBackward = train.BeforeBackward
	AfterBackward  = train.AfterBackward
	AfterStep      = train.AfterStep
	AfterBatch     = train.AfterBatch
	AfterEpoch     = train.AfterEpoch
	AfterFit       = train.AfterFit
)

// Stage names a replaceable implementation slot in the loop.
type Stage = train.Stage

// Stages of the loop.
const (
	StageForward   = train.StageForward
	StageLoss      = train.StageLoss
	StageBackward  = train.StageBackward
	StageZeroGrad  = train.StageZeroGrad
	StageStep      = train.StageStep
	StageScheduler = train.StageScheduler
	StageBatch     = train.StageBatch
	StageEpoch     = train.StageEpoch
	StageInference = train.StageInference
)

// Cancellation sentinels. Returned from a handler or stage they abort
// the enclosing scope. ErrCancelFit is a clean stop: after_fit still
// fires and Fit returns nil.
var (
	ErrCancelBatch = train.ErrCancelBatch
	ErrCancelEpoch = train.ErrCancelEpoch
	ErrCancelFit   = train.ErrCancelFit
)

// Callback is the minimal hook contract. Behavior is declared by also
// implementing any of the per-event handler interfaces.
type Callback = train.Callback

// Orderer customizes a callback's position among handlers of the same
// event. Lower runs earlier; ties keep registration order.
type Orderer = train.Orderer

// Per-event handler interfaces. A callback implements the ones it
// cares about.
type (
	BeforeFitHandler[B tensor.Backend]      = train.BeforeFitHandler[B]
	BeforeEpochHandler[B tensor.Backend]    = train.BeforeEpochHandler[B]
	BeforeBatchHandler[B tensor.Backend]    = train.BeforeBatchHandler[B]
	AfterPredHandler[B tensor.Backend]      = train.AfterPredHandler[B]
	AfterLossHandler[B tensor.Backend]      = train.AfterLossHandler[B]
	BeforeBackwardHandler[B tensor.Backend] = train.BeforeBackwardHandler[B]
	AfterBackwardHandler[B tensor.Backend]  = train.AfterBackwardHandler[B]
	AfterStepHandler[B tensor.Backend]      = train.AfterStepHandler[B]
	AfterBatchHandler[B tensor.Backend]     = train.AfterBatchHandler[B]
	AfterEpochHandler[B tensor.Backend]     = train.AfterEpochHandler[B]
	AfterFitHandler[B tensor.Backend]       = train.AfterFitHandler[B]
)

// LossFunc computes a scalar loss from predictions and integer class
// targets. nn.CrossEntropyLoss.Forward satisfies it directly.
type LossFunc[B tensor.Backend] = train.LossFunc[B]

// StageFunc implements one stage of the loop.
type StageFunc[B tensor.Backend] = train.StageFunc[B]

// Learner drives the training loop. Its exported fields are the loop
// state, readable and mutable by callbacks between stages.
type Learner[B tensor.Backend] = train.Learner[B]

// Option configures a Learner at construction.
type Option[B tensor.Backend] = train.Option[B]

// WithScheduler attaches a learning-rate scheduler, stepped after each
// optimizer step.
func WithScheduler[B tensor.Backend](s optim.Scheduler) Option[B] {
	return train.WithScheduler[B](s)
}

// WithCallbacks registers callbacks at construction.
func WithCallbacks[B tensor.Backend](cbs ...Callback) Option[B] {
	return train.WithCallbacks[B](cbs...)
}

// WithLogger sets the zap logger used by the Learner and the stock
// callbacks. Defaults to a nop logger.
func WithLogger[B tensor.Backend](log *zap.Logger) Option[B] {
	return train.WithLogger[B](log)
}

// WithHistory substitutes the metric history, e.g. one shared across
// learners.
func WithHistory[B tensor.Backend](h *History) Option[B] {
	return train.WithHistory[B](h)
}

// NewLearner builds a Learner with the default stage table bound.
// lossFn may be nil when the loss stage is rebound.
//
// Example:
//
//	learner := train.NewLearner(model, optimizer, criterion.Forward, backend,
//	    train.WithScheduler[B](scheduler),
//	    train.WithCallbacks[B](
//	        train.NewLogger[B](log, 50),
//	        train.NewEarlyStopper[B]("valid_loss", 3),
//	    ),
//	)
func NewLearner[B tensor.Backend](model nn.Module[B], opt optim.Optimizer, lossFn LossFunc[B], backend B, opts ...Option[B]) *Learner[B] {
	return train.NewLearner(model, opt, lossFn, backend, opts...)
}

// Snapshot is an in-memory copy of model and optimizer state.
type Snapshot = train.Snapshot

// History records named metric series during a run.
type History = train.History

// Point is one recorded value of a metric series.
type Point = train.Point

// NewHistory creates an empty history.
func NewHistory() *History {
	return train.NewHistory()
}

// Stock callbacks

// Logger logs training progress through zap.
type Logger[B tensor.Backend] = train.Logger[B]

// NewLogger creates a progress logger that reports every n batches and
// at each epoch end.
func NewLogger[B tensor.Backend](log *zap.Logger, every int) *Logger[B] {
	return train.NewLogger[B](log, every)
}

// Checkpointer writes an ANVL checkpoint after every epoch.
type Checkpointer[B tensor.Backend] = train.Checkpointer[B]

// NewCheckpointer creates a checkpointer writing epoch_NNN.anvl files
// into dir. An empty runID gets a fresh UUID at fit start.
func NewCheckpointer[B tensor.Backend](dir, runID string) *Checkpointer[B] {
	return train.NewCheckpointer[B](dir, runID)
}

// SaveBestConfig configures a SaveBest callback.
type SaveBestConfig = train.SaveBestConfig

// SaveBest snapshots the model whenever the monitored metric improves
// and restores the best snapshot when the fit ends.
type SaveBest[B tensor.Backend] = train.SaveBest[B]

// NewSaveBest creates a SaveBest callback.
//
// Example:
//
//	train.NewSaveBest[B](train.SaveBestConfig{
//	    Monitor: "valid_loss",
//	    Path:    "runs/best.anvl",
//	})
func NewSaveBest[B tensor.Backend](cfg SaveBestConfig) *SaveBest[B] {
	return train.NewSaveBest[B](cfg)
}

// EarlyStopper cancels the fit after the monitored metric stops
// improving for patience epochs.
type EarlyStopper[B tensor.Backend] = train.EarlyStopper[B]

// NewEarlyStopper creates an early stopper watching a history series,
// minimizing by default.
func NewEarlyStopper[B tensor.Backend](monitor string, patience int) *EarlyStopper[B] {
	return train.NewEarlyStopper[B](monitor, patience)
}

// StopFile requests a clean stop when a watched file appears.
type StopFile[B tensor.Backend] = train.StopFile[B]

// NewStopFile creates a stop-file watcher. Touch the file to stop the
// run after the current batch.
func NewStopFile[B tensor.Backend](path string) *StopFile[B] {
	return train.NewStopFile[B](path)
}

// MetricCallback accumulates a metric over batches and logs it into the
// history.
type MetricCallback[B tensor.Backend] = train.MetricCallback[B]

// MetricOption selects the phases a metric runs in.
type MetricOption = train.MetricOption

// OnTrain enables the metric during training, computed every n steps.
func OnTrain(everySteps int) MetricOption {
	return train.OnTrain(everySteps)
}

// OnEval enables the metric during validation passes.
func OnEval() MetricOption {
	return train.OnEval()
}

// NewMetric wraps a metrics.Metric as a callback. By default it runs on
// validation only.
//
// Example:
//
//	train.NewMetric[B](metrics.NewAccuracy())
func NewMetric[B tensor.Backend](m metrics.Metric, opts ...MetricOption) *MetricCallback[B] {
	return train.NewMetric[B](m, opts...)
}

// Learning-rate range test

// LRFinderConfig shapes the sweep. Zero values take defaults.
type LRFinderConfig = train.LRFinderConfig

// LRFinder is the callback behind FindLR, exposing the sweep results.
type LRFinder[B tensor.Backend] = train.LRFinder[B]

// NewLRFinder creates the sweep callback for hand-rolled setups; most
// callers use FindLR.
func NewLRFinder[B tensor.Backend](cfg LRFinderConfig) *LRFinder[B] {
	return train.NewLRFinder[B](cfg)
}

// FindLR runs the exponential learning-rate range test on a copy of the
// learner's state: it sweeps the rate from cfg.Start to cfg.End while
// training on loader, records the smoothed loss at each step, and
// restores model and optimizer before returning.
//
// Example:
//
//	finder, err := train.FindLR(ctx, learner, trainLoader, train.LRFinderConfig{})
//	if err != nil {
//	    return err
//	}
//	if lr, ok := finder.Suggest(); ok {
//	    learner.SetLR(float32(lr))
//	}
func FindLR[B tensor.Backend](ctx context.Context, l *Learner[B], loader *data.Loader[B], cfg LRFinderConfig) (*LRFinder[B], error) {
	return train.FindLR(ctx, l, loader, cfg)
}
