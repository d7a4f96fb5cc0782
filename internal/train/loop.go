package train

import (
	"context"
	"errors"
	"fmt"

	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// bindDefaults installs the stock stage table. Bind replaces entries
// one at a time.
func (l *Learner[B]) bindDefaults() {
	l.Bind(StageForward, forwardStage[B])
	l.Bind(StageLoss, lossStage[B])
	l.Bind(StageBackward, backwardStage[B])
	l.Bind(StageStep, stepStage[B])
	l.Bind(StageScheduler, schedulerStage[B])
	l.Bind(StageZeroGrad, zeroGradStage[B])
	l.Bind(StageBatch, batchStage[B])
	l.Bind(StageEpoch, epochStage[B])
	l.Bind(StageInference, inferenceStage[B])
}

// Fit trains for the given number of epochs. Per epoch it runs a train
// pass over trainLoader and, when validLoader is non-nil, an eval pass.
// after_fit fires on every exit path. ErrCancelFit from a handler or
// stage stops the fit cleanly and Fit returns nil; any other error is
// returned. Context cancellation is observed between batches and
// returns ctx.Err().
func (l *Learner[B]) Fit(ctx context.Context, epochs int, trainLoader, validLoader *data.Loader[B]) error {
	if epochs <= 0 {
		return fmt.Errorf("train: epochs must be positive, got %d", epochs)
	}
	if trainLoader == nil {
		return errors.New("train: nil train loader")
	}
	l.ctx = ctx
	l.TrainLoader = trainLoader
	l.ValidLoader = validLoader
	l.TotalEpochs = epochs
	defer func() {
		l.ctx = context.Background()
		l.TrainLoader, l.ValidLoader = nil, nil
		l.Training = false
		nn.SetTraining(l.model, false)
		l.setRecording(false)
	}()

	err := l.runEpochs(ctx, epochs)

	ferr := l.Fire(AfterFit)

	if errors.Is(err, ErrCancelFit) {
		err = nil
	}
	if err == nil && ferr != nil && !errors.Is(ferr, ErrCancelFit) {
		err = ferr
	}
	return err
}

func (l *Learner[B]) runEpochs(ctx context.Context, epochs int) error {
	if err := l.Fire(BeforeFit); err != nil {
		return err
	}
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Epoch = epoch
		if err := l.epochRound(ctx); err != nil {
			return err
		}
	}
	return nil
}

// epochRound runs one epoch: before_epoch, the epoch stage, then
// after_epoch. ErrCancelEpoch skips the rest of the epoch; after_epoch
// still fires.
func (l *Learner[B]) epochRound(ctx context.Context) error {
	err := l.Fire(BeforeEpoch)
	if err == nil {
		err = l.RunStage(ctx, StageEpoch)
	}
	if errors.Is(err, ErrCancelEpoch) {
		err = nil
	}
	ferr := l.Fire(AfterEpoch)
	if err == nil {
		err = ferr
		if errors.Is(err, ErrCancelEpoch) {
			err = nil
		}
	}
	return err
}

// Validate runs a single eval pass over loader: batch events fire,
// gradients are not recorded, parameters are not touched. It returns
// the mean loss across the pass. Cancellation sentinels end the pass
// cleanly.
func (l *Learner[B]) Validate(ctx context.Context, loader *data.Loader[B]) (float64, error) {
	if loader == nil {
		return 0, errors.New("train: nil loader")
	}
	prevCtx := l.ctx
	l.ctx = ctx
	defer func() { l.ctx = prevCtx }()

	mean, err := l.evalPass(ctx, loader, "")
	if errors.Is(err, ErrCancelEpoch) || errors.Is(err, ErrCancelFit) {
		err = nil
	}
	return mean, err
}

// Predict runs the inference stage on x in eval mode with recording
// off, restoring the previous mode afterwards.
func (l *Learner[B]) Predict(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	wasTraining := l.Training
	wasRecording := l.isRecording()
	prevX, prevPred := l.X, l.Pred

	l.Training = false
	nn.SetTraining(l.model, false)
	l.setRecording(false)
	defer func() {
		l.X, l.Pred = prevX, prevPred
		l.Training = wasTraining
		nn.SetTraining(l.model, wasTraining)
		if wasRecording {
			l.setRecording(true)
		}
	}()

	l.X = x
	if err := l.RunStage(l.ctx, StageInference); err != nil {
		return nil, err
	}
	return l.Pred, nil
}

// trainPass flips the learner into training mode and consumes one pass
// of the loader. The tape is cleared up front so a previous aborted run
// cannot leak operations into this one.
func (l *Learner[B]) trainPass(ctx context.Context, loader *data.Loader[B]) error {
	l.Training = true
	nn.SetTraining(l.model, true)
	l.setRecording(true)
	l.clearTape()

	_, err := l.runPass(ctx, loader, "train_loss")
	return err
}

// evalPass runs inference-only batches with recording suspended,
// restoring the recording state afterwards.
func (l *Learner[B]) evalPass(ctx context.Context, loader *data.Loader[B], series string) (float64, error) {
	l.Training = false
	nn.SetTraining(l.model, false)
	wasRecording := l.isRecording()
	l.setRecording(false)
	defer func() {
		if wasRecording {
			l.setRecording(true)
		}
	}()

	return l.runPass(ctx, loader, series)
}

// runPass drives the batch stage over one loader pass and returns the
// mean scalar loss. When series is non-empty the mean is logged to the
// history under it, keyed by the current step.
func (l *Learner[B]) runPass(ctx context.Context, loader *data.Loader[B], series string) (float64, error) {
	passCtx, cancel := context.WithCancel(ctx)
	batches := loader.Batches(passCtx)
	defer func() {
		cancel()
		for range batches { // unblock the loader's workers
		}
	}()

	var lossSum float64
	var counted int

	index := 0
	for batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		l.Batch = index
		l.X, l.Y = batch.X, batch.Y

		err := l.RunStage(ctx, StageBatch)

		if l.Loss != nil && l.Loss.NumElements() == 1 {
			lossSum += float64(l.Loss.Item())
			counted++
		}
		l.X, l.Y, l.Pred, l.Loss = nil, nil, nil, nil
		if err != nil {
			return 0, err
		}
		index++
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := loader.Err(); err != nil {
		return 0, fmt.Errorf("train: loader: %w", err)
	}

	var mean float64
	if counted > 0 {
		mean = lossSum / float64(counted)
		if series != "" {
			l.history.Log(series, l.Step, mean)
		}
	}
	return mean, nil
}

// epochStage is the default epoch implementation: a train pass, then an
// eval pass when a validation loader is present.
func epochStage[B tensor.Backend](ctx context.Context, l *Learner[B]) error {
	if err := l.trainPass(ctx, l.TrainLoader); err != nil {
		return err
	}
	if l.ValidLoader != nil {
		if _, err := l.evalPass(ctx, l.ValidLoader, "valid_loss"); err != nil {
			return err
		}
	}
	return nil
}

// batchStage runs the fixed batch sequence. after_batch fires even for
// a canceled batch, and ErrCancelBatch ends the batch without ending
// the pass.
func batchStage[B tensor.Backend](ctx context.Context, l *Learner[B]) error {
	err := l.batchBody(ctx)
	ferr := l.Fire(AfterBatch)
	if err == nil {
		err = ferr
	}
	if errors.Is(err, ErrCancelBatch) {
		return nil
	}
	return err
}

func (l *Learner[B]) batchBody(ctx context.Context) error {
	if err := l.Fire(BeforeBatch); err != nil {
		return err
	}
	if err := l.RunStage(ctx, StageForward); err != nil {
		return err
	}
	if err := l.Fire(AfterPred); err != nil {
		return err
	}
	if err := l.RunStage(ctx, StageLoss); err != nil {
		return err
	}
	if err := l.Fire(AfterLoss); err != nil {
		return err
	}
	if !l.Training {
		return nil
	}
	if err := l.Fire(BeforeBackward); err != nil {
		return err
	}
	if err := l.RunStage(ctx, StageBackward); err != nil {
		return err
	}
	if err := l.Fire(AfterBackward); err != nil {
		return err
	}
	if err := l.RunStage(ctx, StageStep); err != nil {
		return err
	}
	l.Step++
	if err := l.Fire(AfterStep); err != nil {
		return err
	}
	if err := l.RunStage(ctx, StageScheduler); err != nil {
		return err
	}
	return l.RunStage(ctx, StageZeroGrad)
}

func forwardStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	if l.X == nil {
		return errors.New("train: forward stage with no input batch")
	}
	l.Pred = l.model.Forward(l.X)
	return nil
}

func lossStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	if l.lossFn == nil {
		return errors.New("train: no loss function (pass one to NewLearner or rebind the loss stage)")
	}
	if l.Pred == nil {
		return errors.New("train: loss stage before forward")
	}
	l.Loss = l.lossFn(l.Pred, l.Y)
	return nil
}

func backwardStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	rec, ok := l.recorder()
	if !ok {
		return fmt.Errorf("train: backend %q does not record gradients; wrap it in autodiff.New to train", l.backend.Name())
	}
	if l.Loss == nil {
		return errors.New("train: backward stage before loss")
	}
	l.Grads = autodiff.BackwardRaw(l.Loss.Raw(), rec)
	l.attachGrads()
	return nil
}

// attachGrads mirrors the gradient map into the parameter grad slots so
// callbacks can inspect or clip them at after_backward.
func (l *Learner[B]) attachGrads() {
	for _, p := range l.model.Parameters() {
		if g, ok := l.Grads[p.Tensor().Raw()]; ok {
			p.SetGrad(tensor.New[float32](g, l.backend))
		}
	}
}

func stepStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	if l.opt == nil {
		return errors.New("train: no optimizer")
	}
	if l.Grads == nil {
		return errors.New("train: step stage with no gradients")
	}
	l.opt.Step(l.Grads)
	return nil
}

func schedulerStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	if l.sched != nil {
		l.sched.Step()
	}
	return nil
}

func zeroGradStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	if l.opt != nil {
		l.opt.ZeroGrad()
	}
	l.Grads = nil
	l.clearTape()
	return nil
}

func inferenceStage[B tensor.Backend](_ context.Context, l *Learner[B]) error {
	if l.X == nil {
		return errors.New("train: inference stage with no input")
	}
	l.Pred = l.model.Forward(l.X)
	return nil
}

func (l *Learner[B]) isRecording() bool {
	rec, ok := l.recorder()
	return ok && rec.Tape().IsRecording()
}

func (l *Learner[B]) clearTape() {
	if rec, ok := l.recorder(); ok {
		rec.Tape().Clear()
	}
}
