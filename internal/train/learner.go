package train

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/checkpoint"
	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/optim"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// binding is one callback handler bound to an event.
type binding[B tensor.Backend] struct {
	cb    Callback
	order int
	fn    func(*Learner[B]) error
}

// StageFunc is one stage implementation. The context is the one passed
// to the enclosing Fit or Validate call.
type StageFunc[B tensor.Backend] func(ctx context.Context, l *Learner[B]) error

// Learner drives the training loop. The exported fields are the loop
// state: callbacks read and mutate them between stages. X, Y, Pred and
// Loss are only valid inside a batch (Pred from after the forward
// stage, Loss from after the loss stage, both until batch end).
type Learner[B tensor.Backend] struct {
	model   nn.Module[B]
	opt     optim.Optimizer
	lossFn  LossFunc[B]
	backend B
	sched   optim.Scheduler
	log     *zap.Logger
	history *History

	stages   map[Stage]StageFunc[B]
	handlers map[Event][]binding[B]

	ctx context.Context

	// Current batch, set by the pass loop.
	X *tensor.Tensor[float32, B]
	Y *tensor.Tensor[int32, B]

	// Forward and loss results for the current batch.
	Pred *tensor.Tensor[float32, B]
	Loss *tensor.Tensor[float32, B]

	// Gradients from the backward stage, keyed by raw tensor. Consumed
	// by the step stage, cleared by zero_grad.
	Grads map[*tensor.RawTensor]*tensor.RawTensor

	// Counters. Epoch and Batch restart per fit and per pass; Step
	// grows monotonically across fits.
	Epoch       int
	TotalEpochs int
	Batch       int
	Step        int64

	// Training is true during a train pass, false during eval.
	Training bool

	// Loaders for the running fit, readable by rebound stages.
	TrainLoader *data.Loader[B]
	ValidLoader *data.Loader[B]
}

// Option configures a Learner at construction.
type Option[B tensor.Backend] func(*Learner[B])

// WithScheduler attaches a learning-rate scheduler, stepped by the
// scheduler stage after each optimizer step.
func WithScheduler[B tensor.Backend](s optim.Scheduler) Option[B] {
	return func(l *Learner[B]) { l.sched = s }
}

// WithCallbacks registers callbacks at construction.
func WithCallbacks[B tensor.Backend](cbs ...Callback) Option[B] {
	return func(l *Learner[B]) { l.AddCallback(cbs...) }
}

// WithLogger sets the zap logger used by the Learner and the stock
// callbacks. Defaults to a nop logger.
func WithLogger[B tensor.Backend](log *zap.Logger) Option[B] {
	return func(l *Learner[B]) { l.log = log }
}

// WithHistory substitutes the metric history, e.g. one shared across
// learners.
func WithHistory[B tensor.Backend](h *History) Option[B] {
	return func(l *Learner[B]) { l.history = h }
}

// NewLearner builds a Learner with the default stage table bound.
// lossFn may be nil when the loss stage is rebound.
func NewLearner[B tensor.Backend](model nn.Module[B], opt optim.Optimizer, lossFn LossFunc[B], backend B, opts ...Option[B]) *Learner[B] {
	l := &Learner[B]{
		model:    model,
		opt:      opt,
		lossFn:   lossFn,
		backend:  backend,
		log:      zap.NewNop(),
		history:  NewHistory(),
		stages:   make(map[Stage]StageFunc[B]),
		handlers: make(map[Event][]binding[B]),
		ctx:      context.Background(),
	}
	l.bindDefaults()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Model returns the model under training.
func (l *Learner[B]) Model() nn.Module[B] { return l.model }

// Optimizer returns the optimizer.
func (l *Learner[B]) Optimizer() optim.Optimizer { return l.opt }

// Scheduler returns the attached scheduler, nil when absent.
func (l *Learner[B]) Scheduler() optim.Scheduler { return l.sched }

// Backend returns the tensor backend the loop runs on.
func (l *Learner[B]) Backend() B { return l.backend }

// History returns the metric history.
func (l *Learner[B]) History() *History { return l.history }

// Logger returns the zap logger.
func (l *Learner[B]) Logger() *zap.Logger { return l.log }

// Context returns the context of the running fit, or the background
// context when the loop is idle.
func (l *Learner[B]) Context() context.Context { return l.ctx }

// LR returns the optimizer's current learning rate.
func (l *Learner[B]) LR() float32 { return l.opt.LR() }

// SetLR overrides the optimizer's learning rate.
func (l *Learner[B]) SetLR(lr float32) { l.opt.SetLR(lr) }

// AddCallback registers callbacks. Handler detection happens here,
// once: each handler interface the callback implements binds it to the
// matching event. A callback added mid-fit participates from the next
// event fire; binding lists are replaced, never mutated, so a Fire in
// progress keeps iterating its own snapshot.
func (l *Learner[B]) AddCallback(cbs ...Callback) {
	for _, cb := range cbs {
		order := 0
		if o, ok := cb.(Orderer); ok {
			order = o.Order()
		}
		add := func(ev Event, fn func(*Learner[B]) error) {
			next := make([]binding[B], 0, len(l.handlers[ev])+1)
			next = append(next, l.handlers[ev]...)
			next = append(next, binding[B]{cb: cb, order: order, fn: fn})
			sort.SliceStable(next, func(i, j int) bool {
				return next[i].order < next[j].order
			})
			l.handlers[ev] = next
		}
		if h, ok := cb.(BeforeFitHandler[B]); ok {
			add(BeforeFit, h.OnBeforeFit)
		}
		if h, ok := cb.(BeforeEpochHandler[B]); ok {
			add(BeforeEpoch, h.OnBeforeEpoch)
		}
		if h, ok := cb.(BeforeBatchHandler[B]); ok {
			add(BeforeBatch, h.OnBeforeBatch)
		}
		if h, ok := cb.(AfterPredHandler[B]); ok {
			add(AfterPred, h.OnAfterPred)
		}
		if h, ok := cb.(AfterLossHandler[B]); ok {
			add(AfterLoss, h.OnAfterLoss)
		}
		if h, ok := cb.(BeforeBackwardHandler[B]); ok {
			add(BeforeBackward, h.OnBeforeBackward)
		}
		if h, ok := cb.(AfterBackwardHandler[B]); ok {
			add(AfterBackward, h.OnAfterBackward)
		}
		if h, ok := cb.(AfterStepHandler[B]); ok {
			add(AfterStep, h.OnAfterStep)
		}
		if h, ok := cb.(AfterBatchHandler[B]); ok {
			add(AfterBatch, h.OnAfterBatch)
		}
		if h, ok := cb.(AfterEpochHandler[B]); ok {
			add(AfterEpoch, h.OnAfterEpoch)
		}
		if h, ok := cb.(AfterFitHandler[B]); ok {
			add(AfterFit, h.OnAfterFit)
		}
	}
}

// RemoveCallback unbinds every handler of cb, compared by identity.
// Safe to call from inside a handler; the current Fire completes over
// the old binding list.
func (l *Learner[B]) RemoveCallback(cb Callback) {
	for ev, bindings := range l.handlers {
		kept := make([]binding[B], 0, len(bindings))
		for _, b := range bindings {
			if b.cb != cb {
				kept = append(kept, b)
			}
		}
		l.handlers[ev] = kept
	}
}

// Callbacks returns the distinct registered callbacks in registration
// order of their first binding.
func (l *Learner[B]) Callbacks() []Callback {
	seen := make(map[Callback]bool)
	var out []Callback
	for _, ev := range []Event{
		BeforeFit, BeforeEpoch, BeforeBatch, AfterPred, AfterLoss,
		BeforeBackward, AfterBackward, AfterStep, AfterBatch, AfterEpoch, AfterFit,
	} {
		for _, b := range l.handlers[ev] {
			if !seen[b.cb] {
				seen[b.cb] = true
				out = append(out, b.cb)
			}
		}
	}
	return out
}

// Fire invokes all handlers bound to event, in ascending order. The
// first error stops the chain and is returned. Exposed so replacement
// stages can keep the event contract.
func (l *Learner[B]) Fire(event Event) error {
	for _, b := range l.handlers[event] {
		if err := b.fn(l); err != nil {
			return err
		}
	}
	return nil
}

// Bind swaps the implementation of a stage. The change takes effect
// from the next dispatch.
func (l *Learner[B]) Bind(stage Stage, fn StageFunc[B]) {
	if fn == nil {
		panic("train: Bind with nil stage func")
	}
	l.stages[stage] = fn
}

// RunStage dispatches a stage through the current table. Replacement
// batch or epoch stages use it to delegate to the inner stages.
func (l *Learner[B]) RunStage(ctx context.Context, stage Stage) error {
	fn, ok := l.stages[stage]
	if !ok {
		return fmt.Errorf("train: no implementation bound for stage %q", stage)
	}
	return fn(ctx, l)
}

// recorder returns the gradient tape interface of the backend, when it
// has one.
func (l *Learner[B]) recorder() (autodiff.GradientRecorder, bool) {
	rec, ok := any(l.backend).(autodiff.GradientRecorder)
	return rec, ok
}

// setRecording flips gradient recording when the backend records at
// all. Plain device backends are left alone; the backward stage
// reports the problem if training is attempted on one.
func (l *Learner[B]) setRecording(on bool) {
	rec, ok := l.recorder()
	if !ok {
		return
	}
	if on {
		rec.Tape().StartRecording()
	} else {
		rec.Tape().StopRecording()
	}
}

// Snapshot is an in-memory copy of model and optimizer state, used by
// SaveBest and the LR finder to roll the learner back.
type Snapshot struct {
	model map[string]*tensor.RawTensor
	opt   map[string]*tensor.RawTensor
	lr    float32
	step  int64
}

// Snapshot deep-copies the model parameters, optimizer buffers,
// learning rate and step counter. The model must implement
// nn.Stateful.
func (l *Learner[B]) Snapshot() (*Snapshot, error) {
	st, ok := l.model.(nn.Stateful)
	if !ok {
		return nil, fmt.Errorf("train: model %T does not expose a state dict", l.model)
	}
	snap := &Snapshot{
		model: cloneState(st.StateDict()),
		lr:    l.opt.LR(),
		step:  l.Step,
	}
	if so, ok := l.opt.(optim.StatefulOptimizer); ok {
		snap.opt = cloneState(so.StateDict())
	}
	return snap, nil
}

// Restore puts a snapshot back: model parameters, optimizer buffers,
// learning rate and step counter.
func (l *Learner[B]) Restore(snap *Snapshot) error {
	if snap == nil {
		return errors.New("train: nil snapshot")
	}
	st, ok := l.model.(nn.Stateful)
	if !ok {
		return fmt.Errorf("train: model %T does not expose a state dict", l.model)
	}
	if err := st.LoadStateDict(snap.model); err != nil {
		return fmt.Errorf("train: restore model: %w", err)
	}
	if snap.opt != nil {
		if so, ok := l.opt.(optim.StatefulOptimizer); ok {
			if err := so.LoadStateDict(snap.opt); err != nil {
				return fmt.Errorf("train: restore optimizer: %w", err)
			}
		}
	}
	l.opt.SetLR(snap.lr)
	l.Step = snap.step
	return nil
}

// SaveCheckpoint writes model and optimizer state to an ANVL file.
// Model tensors are prefixed "model.", optimizer buffers "optim.".
// The passed meta is completed with step and optimizer type/config.
func (l *Learner[B]) SaveCheckpoint(path string, meta checkpoint.Meta) error {
	st, ok := l.model.(nn.Stateful)
	if !ok {
		return fmt.Errorf("train: model %T does not expose a state dict", l.model)
	}
	state := make(map[string]*tensor.RawTensor)
	for name, raw := range st.StateDict() {
		state["model."+name] = raw
	}
	meta.Step = l.Step
	if so, ok := l.opt.(optim.StatefulOptimizer); ok {
		for name, raw := range so.StateDict() {
			state["optim."+name] = raw
		}
		meta.OptimizerType = so.Type()
		meta.OptimizerConfig = so.Config()
	}
	return checkpoint.Save(path, state, meta)
}

// LoadCheckpoint restores model and optimizer state from an ANVL file
// written by SaveCheckpoint and resumes the step counter from its meta.
func (l *Learner[B]) LoadCheckpoint(path string) (checkpoint.Meta, error) {
	st, ok := l.model.(nn.Stateful)
	if !ok {
		return checkpoint.Meta{}, fmt.Errorf("train: model %T does not expose a state dict", l.model)
	}
	state, meta, err := checkpoint.Load(path, l.backend.Device())
	if err != nil {
		return checkpoint.Meta{}, err
	}
	modelState := make(map[string]*tensor.RawTensor)
	optState := make(map[string]*tensor.RawTensor)
	for name, raw := range state {
		switch {
		case strings.HasPrefix(name, "model."):
			modelState[strings.TrimPrefix(name, "model.")] = raw
		case strings.HasPrefix(name, "optim."):
			optState[strings.TrimPrefix(name, "optim.")] = raw
		}
	}
	if err := st.LoadStateDict(modelState); err != nil {
		return checkpoint.Meta{}, fmt.Errorf("train: load model state: %w", err)
	}
	if len(optState) > 0 {
		if so, ok := l.opt.(optim.StatefulOptimizer); ok {
			if err := so.LoadStateDict(optState); err != nil {
				return checkpoint.Meta{}, fmt.Errorf("train: load optimizer state: %w", err)
			}
		}
	}
	l.Step = meta.Step
	return meta, nil
}

// cloneState deep-copies a state dict so later training does not write
// through into the snapshot.
func cloneState(state map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(state))
	for name, raw := range state {
		cp, err := tensor.NewRaw(raw.Shape(), raw.DType(), raw.Device())
		if err != nil {
			panic(fmt.Sprintf("train: clone state: %v", err))
		}
		copy(cp.Data(), raw.Data())
		out[name] = cp
	}
	return out
}
