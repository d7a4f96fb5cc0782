// Package train implements the event-driven training loop: a Learner
// that owns model, optimizer and loss, fires named events at fixed
// points of the fit cycle, and dispatches each phase of the loop
// through a replaceable stage table.
//
// Callbacks implement Name() plus any of the per-event handler
// interfaces; the Learner detects handlers at registration:
//
//	learner := train.NewLearner(model, opt, lossFn.Forward, backend,
//	    train.WithCallbacks[B](
//	        train.NewLogger[B](log, 50),
//	        train.NewCheckpointer[B]("runs/mnist", ""),
//	    ),
//	)
//	err := learner.Fit(ctx, 10, trainLoader, validLoader)
//
// Stages are the loop's own phases (forward, loss, backward, step, ...)
// and can be rebound one at a time with Bind, so a regression user can
// swap the loss stage without giving up the event protocol.
package train

import (
	"errors"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Event names a hook point fired at a fixed place in the loop.
type Event string

// Lifecycle events, in the order the loop reaches them.
const (
	BeforeFit      Event = "before_fit"
	BeforeEpoch    Event = "before_epoch"
	BeforeBatch    Event = "before_batch"
	AfterPred      Event = "after_pred"
	AfterLoss      Event = "after_loss"
	BeforeBackward Event = "before_backward"
	AfterBackward  Event = "after_backward"
	AfterStep      Event = "after_step"
	AfterBatch     Event = "after_batch"
	AfterEpoch     Event = "after_epoch"
	AfterFit       Event = "after_fit"
)

// Stage names a replaceable implementation slot. The defaults are bound
// at construction; Bind swaps one and the change applies from the next
// dispatch.
type Stage string

// Stages of the loop.
const (
	StageForward   Stage = "forward"
	StageLoss      Stage = "loss"
	StageBackward  Stage = "backward"
	StageZeroGrad  Stage = "zero_grad"
	StageStep      Stage = "step"
	StageScheduler Stage = "scheduler"
	StageBatch     Stage = "batch"
	StageEpoch     Stage = "epoch"
	StageInference Stage = "inference"
)

// Cancellation sentinels. Returned from a handler or stage they abort
// the enclosing scope: the current batch, the current epoch, or the
// whole fit. ErrCancelFit is a clean stop: after_fit still fires and
// Fit returns nil.
var (
	ErrCancelBatch = errors.New("train: cancel batch")
	ErrCancelEpoch = errors.New("train: cancel epoch")
	ErrCancelFit   = errors.New("train: cancel fit")
)

// Callback is the minimal hook contract. Behavior is declared by also
// implementing any of the per-event handler interfaces below.
type Callback interface {
	Name() string
}

// Orderer customizes a callback's position among handlers of the same
// event. Lower runs earlier; callbacks without an order run at 0; ties
// keep registration order.
type Orderer interface {
	Order() int
}

// Per-event handler interfaces. A callback implements the ones it
// cares about.
type (
	BeforeFitHandler[B tensor.Backend] interface {
		OnBeforeFit(l *Learner[B]) error
	}
	BeforeEpochHandler[B tensor.Backend] interface {
		OnBeforeEpoch(l *Learner[B]) error
	}
	BeforeBatchHandler[B tensor.Backend] interface {
		OnBeforeBatch(l *Learner[B]) error
	}
	AfterPredHandler[B tensor.Backend] interface {
		OnAfterPred(l *Learner[B]) error
	}
	AfterLossHandler[B tensor.Backend] interface {
		OnAfterLoss(l *Learner[B]) error
	}
	BeforeBackwardHandler[B tensor.Backend] interface {
		OnBeforeBackward(l *Learner[B]) error
	}
	AfterBackwardHandler[B tensor.Backend] interface {
		OnAfterBackward(l *Learner[B]) error
	}
	AfterStepHandler[B tensor.Backend] interface {
		OnAfterStep(l *Learner[B]) error
	}
	AfterBatchHandler[B tensor.Backend] interface {
		OnAfterBatch(l *Learner[B]) error
	}
	AfterEpochHandler[B tensor.Backend] interface {
		OnAfterEpoch(l *Learner[B]) error
	}
	AfterFitHandler[B tensor.Backend] interface {
		OnAfterFit(l *Learner[B]) error
	}
)

// LossFunc computes a scalar loss from predictions and integer class
// targets. nn.CrossEntropyLoss.Forward satisfies it directly.
type LossFunc[B tensor.Backend] func(pred *tensor.Tensor[float32, B], target *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B]
