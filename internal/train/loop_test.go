package train_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/checkpoint"
	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/optim"
	"github.com/anvil-ml/anvil/internal/tensor"
	"github.com/anvil-ml/anvil/internal/train"
)

// recB is the backend the loop tests train on: the CPU backend wrapped
// in a gradient tape.
type recB = *autodiff.Backend[*cpu.Backend]

func newBackend() recB { return autodiff.New(cpu.New()) }

func newTestLearner(backend recB, opts ...train.Option[recB]) *train.Learner[recB] {
	model := nn.NewSequential[recB](
		nn.NewLinear(2, 8, backend),
		nn.NewReLU[recB](),
		nn.NewLinear(8, 2, backend),
	)
	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1})
	lossFn := nn.NewCrossEntropyLoss[recB](backend).Forward
	return train.NewLearner(model, opt, lossFn, backend, opts...)
}

func blobsLoader(backend recB, samples, batchSize int) *data.Loader[recB] {
	ds := data.NewBlobs(data.BlobsConfig{Samples: samples, Spread: 0.2, Seed: 7})
	return data.NewLoader(ds, backend, data.LoaderConfig{BatchSize: batchSize})
}

func paramData(l *train.Learner[recB]) []float32 {
	return append([]float32(nil), l.Model().Parameters()[0].Tensor().Data()...)
}

// eventTap records every event it sees and forwards to an optional
// hook, which lets tests inject cancellations at precise points.
type eventTap struct {
	name  string
	order int
	log   *[]string
	hook  func(ev train.Event, l *train.Learner[recB]) error
}

func (c *eventTap) Name() string { return c.name }
func (c *eventTap) Order() int   { return c.order }

func (c *eventTap) hit(ev train.Event, l *train.Learner[recB]) error {
	if c.log != nil {
		*c.log = append(*c.log, c.name+":"+string(ev))
	}
	if c.hook != nil {
		return c.hook(ev, l)
	}
	return nil
}

func (c *eventTap) OnBeforeFit(l *train.Learner[recB]) error      { return c.hit(train.BeforeFit, l) }
func (c *eventTap) OnBeforeEpoch(l *train.Learner[recB]) error    { return c.hit(train.BeforeEpoch, l) }
func (c *eventTap) OnBeforeBatch(l *train.Learner[recB]) error    { return c.hit(train.BeforeBatch, l) }
func (c *eventTap) OnAfterPred(l *train.Learner[recB]) error      { return c.hit(train.AfterPred, l) }
func (c *eventTap) OnAfterLoss(l *train.Learner[recB]) error      { return c.hit(train.AfterLoss, l) }
func (c *eventTap) OnBeforeBackward(l *train.Learner[recB]) error { return c.hit(train.BeforeBackward, l) }
func (c *eventTap) OnAfterBackward(l *train.Learner[recB]) error  { return c.hit(train.AfterBackward, l) }
func (c *eventTap) OnAfterStep(l *train.Learner[recB]) error      { return c.hit(train.AfterStep, l) }
func (c *eventTap) OnAfterBatch(l *train.Learner[recB]) error     { return c.hit(train.AfterBatch, l) }
func (c *eventTap) OnAfterEpoch(l *train.Learner[recB]) error     { return c.hit(train.AfterEpoch, l) }
func (c *eventTap) OnAfterFit(l *train.Learner[recB]) error       { return c.hit(train.AfterFit, l) }

func countEvents(log []string, entry string) int {
	n := 0
	for _, e := range log {
		if e == entry {
			n++
		}
	}
	return n
}

func TestFit_LossDecreases(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	trainLoader := blobsLoader(backend, 64, 16)
	validLoader := blobsLoader(backend, 32, 16)

	err := l.Fit(context.Background(), 8, trainLoader, validLoader)
	require.NoError(t, err)

	trainLoss := l.History().Series("train_loss")
	require.Len(t, trainLoss, 8)
	assert.Less(t, trainLoss[7].Value, trainLoss[0].Value, "training loss should decrease")

	validLoss := l.History().Series("valid_loss")
	require.Len(t, validLoss, 8)
	assert.Less(t, validLoss[7].Value, validLoss[0].Value, "validation loss should decrease")
}

func TestFit_EventOrder(t *testing.T) {
	backend := newBackend()
	var log []string
	l := newTestLearner(backend, train.WithCallbacks[recB](&eventTap{name: "t", log: &log}))

	trainLoader := blobsLoader(backend, 32, 16) // 2 train batches
	validLoader := blobsLoader(backend, 16, 16) // 1 valid batch

	require.NoError(t, l.Fit(context.Background(), 1, trainLoader, validLoader))

	trainBatch := []string{
		"t:before_batch", "t:after_pred", "t:after_loss",
		"t:before_backward", "t:after_backward", "t:after_step", "t:after_batch",
	}
	validBatch := []string{"t:before_batch", "t:after_pred", "t:after_loss", "t:after_batch"}

	want := []string{"t:before_fit", "t:before_epoch"}
	want = append(want, trainBatch...)
	want = append(want, trainBatch...)
	want = append(want, validBatch...)
	want = append(want, "t:after_epoch", "t:after_fit")

	assert.Equal(t, want, log)
}

func TestFit_StepGrowsAcrossFits(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 64, 16) // 4 batches per epoch

	require.NoError(t, l.Fit(context.Background(), 1, loader, nil))
	assert.Equal(t, int64(4), l.Step)

	require.NoError(t, l.Fit(context.Background(), 1, loader, nil))
	assert.Equal(t, int64(8), l.Step, "step counter continues across fits")
}

func TestFit_CancelBatchSkipsRestOfBatch(t *testing.T) {
	backend := newBackend()
	var log []string
	tap := &eventTap{name: "t", log: &log, hook: func(ev train.Event, l *train.Learner[recB]) error {
		if ev == train.AfterLoss && l.Epoch == 0 && l.Batch == 0 {
			return train.ErrCancelBatch
		}
		return nil
	}}
	l := newTestLearner(backend, train.WithCallbacks[recB](tap))
	loader := blobsLoader(backend, 64, 16) // 4 batches

	require.NoError(t, l.Fit(context.Background(), 1, loader, nil))

	assert.Equal(t, int64(3), l.Step, "cancelled batch must not step the optimizer")
	assert.Equal(t, 4, countEvents(log, "t:after_batch"), "after_batch fires for the cancelled batch too")
	assert.Equal(t, 3, countEvents(log, "t:after_step"))
}

func TestFit_CancelEpochSkipsRestOfEpoch(t *testing.T) {
	backend := newBackend()
	var log []string
	tap := &eventTap{name: "t", log: &log, hook: func(ev train.Event, l *train.Learner[recB]) error {
		if ev == train.AfterBatch && l.Epoch == 0 && l.Batch == 0 {
			return train.ErrCancelEpoch
		}
		return nil
	}}
	l := newTestLearner(backend, train.WithCallbacks[recB](tap))
	loader := blobsLoader(backend, 64, 16) // 4 batches

	require.NoError(t, l.Fit(context.Background(), 2, loader, nil))

	assert.Equal(t, int64(5), l.Step, "one step in the cancelled epoch, four in the next")
	assert.Equal(t, 2, countEvents(log, "t:after_epoch"), "after_epoch fires for the cancelled epoch")
}

func TestFit_CancelFitStopsCleanly(t *testing.T) {
	backend := newBackend()
	var log []string
	tap := &eventTap{name: "t", log: &log, hook: func(ev train.Event, l *train.Learner[recB]) error {
		if ev == train.AfterEpoch && l.Epoch == 0 {
			return train.ErrCancelFit
		}
		return nil
	}}
	l := newTestLearner(backend, train.WithCallbacks[recB](tap))
	loader := blobsLoader(backend, 32, 16)

	require.NoError(t, l.Fit(context.Background(), 5, loader, nil), "cancel sentinel is not an error")

	assert.Equal(t, 1, countEvents(log, "t:before_epoch"), "remaining epochs skipped")
	assert.Equal(t, 1, countEvents(log, "t:after_fit"), "after_fit still fires")
}

func TestFit_ContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := newBackend()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tap := &eventTap{name: "t", hook: func(ev train.Event, l *train.Learner[recB]) error {
		if ev == train.AfterBatch && l.Epoch == 0 && l.Batch == 0 {
			cancel()
		}
		return nil
	}}
	l := newTestLearner(backend, train.WithCallbacks[recB](tap))
	loader := blobsLoader(backend, 64, 16)

	err := l.Fit(ctx, 10, loader, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, l.Step, int64(8), "fit must stop at the next boundary")
}

func TestFit_ArgumentValidation(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 32, 16)

	err := l.Fit(context.Background(), 0, loader, nil)
	require.ErrorContains(t, err, "epochs must be positive")

	err = l.Fit(context.Background(), 1, nil, nil)
	require.ErrorContains(t, err, "nil train loader")
}

func TestFit_NoCallbacksNoValidLoader(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 32, 16)

	require.NoError(t, l.Fit(context.Background(), 2, loader, nil))
	assert.Equal(t, int64(4), l.Step)
	assert.Empty(t, l.History().Series("valid_loss"))
}

func TestFit_MidFitRegistration(t *testing.T) {
	backend := newBackend()
	var log []string
	late := &eventTap{name: "late", log: &log}
	adder := &eventTap{name: "adder", hook: func(ev train.Event, l *train.Learner[recB]) error {
		if ev == train.BeforeEpoch && l.Epoch == 1 {
			l.AddCallback(late)
		}
		return nil
	}}
	l := newTestLearner(backend, train.WithCallbacks[recB](adder))
	loader := blobsLoader(backend, 16, 16)

	require.NoError(t, l.Fit(context.Background(), 3, loader, nil))

	assert.Zero(t, countEvents(log, "late:before_fit"), "registered after before_fit fired")
	assert.Equal(t, 2, countEvents(log, "late:after_epoch"), "participates from the next fire on")
}

func TestFit_PlainBackendCannotTrain(t *testing.T) {
	backend := cpu.New()
	model := nn.NewLinear(2, 2, backend)
	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1})
	lossFn := nn.NewCrossEntropyLoss[*cpu.Backend](backend).Forward
	l := train.NewLearner[*cpu.Backend](model, opt, lossFn, backend)

	ds := data.NewBlobs(data.BlobsConfig{Samples: 16, Spread: 0.2, Seed: 7})
	loader := data.NewLoader(ds, backend, data.LoaderConfig{BatchSize: 16})

	err := l.Fit(context.Background(), 1, loader, nil)
	require.ErrorContains(t, err, "does not record gradients")
}

func TestValidate_DoesNotTouchModel(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 32, 16)

	before := paramData(l)
	mean, err := l.Validate(context.Background(), loader)
	require.NoError(t, err)

	assert.Positive(t, mean)
	assert.Equal(t, before, paramData(l), "evaluation must not update parameters")
	assert.Zero(t, l.Step)
	assert.Empty(t, l.History().Names(), "standalone validation does not log history")
}

func TestValidate_ReturnsMeanLoss(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	l.Bind(train.StageLoss, func(_ context.Context, l *train.Learner[recB]) error {
		l.Loss = tensor.Full[float32](tensor.Shape{1}, 2, l.Backend())
		return nil
	})
	loader := blobsLoader(backend, 48, 16)

	mean, err := l.Validate(context.Background(), loader)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mean, 1e-6)
}

func TestPredict(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)

	x := tensor.Randn[float32](tensor.Shape{4, 2}, backend)
	pred, err := l.Predict(x)
	require.NoError(t, err)

	require.NotNil(t, pred)
	assert.Equal(t, tensor.Shape{4, 2}, pred.Shape())
	assert.Nil(t, l.Pred, "loop state stays clean outside a fit")
	assert.Nil(t, l.X)
}

func TestSnapshotRestore(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 64, 16)

	snap, err := l.Snapshot()
	require.NoError(t, err)
	before := paramData(l)

	require.NoError(t, l.Fit(context.Background(), 2, loader, nil))
	l.SetLR(0.5)
	require.NotEqual(t, before, paramData(l), "training should move parameters")

	require.NoError(t, l.Restore(snap))
	assert.Equal(t, before, paramData(l))
	assert.Zero(t, l.Step)
	assert.InDelta(t, 0.1, float64(l.LR()), 1e-7)
}

func TestCheckpointRoundTrip(t *testing.T) {
	backend := newBackend()
	model := nn.NewSequential[recB](
		nn.NewLinear(2, 8, backend),
		nn.NewReLU[recB](),
		nn.NewLinear(8, 2, backend),
	)
	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	lossFn := nn.NewCrossEntropyLoss[recB](backend).Forward
	l := train.NewLearner(model, opt, lossFn, backend)
	loader := blobsLoader(backend, 64, 16)

	require.NoError(t, l.Fit(context.Background(), 1, loader, nil))
	path := filepath.Join(t.TempDir(), "ckpt.anvl")
	require.NoError(t, l.SaveCheckpoint(path, checkpoint.Meta{RunID: "run-7", Epoch: l.Epoch}))
	saved := paramData(l)
	savedStep := l.Step

	require.NoError(t, l.Fit(context.Background(), 1, loader, nil))
	require.NotEqual(t, saved, paramData(l))

	meta, err := l.LoadCheckpoint(path)
	require.NoError(t, err)

	assert.Equal(t, saved, paramData(l))
	assert.Equal(t, savedStep, l.Step)
	assert.Equal(t, "run-7", meta.RunID)
	assert.Equal(t, "sgd", meta.OptimizerType)
	assert.InDelta(t, 0.9, meta.OptimizerConfig["momentum"], 1e-6)
}

func TestFit_ReboundEpochStage(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 32, 16)

	epochs := 0
	l.Bind(train.StageEpoch, func(_ context.Context, _ *train.Learner[recB]) error {
		epochs++
		return nil
	})

	require.NoError(t, l.Fit(context.Background(), 3, loader, nil))
	assert.Equal(t, 3, epochs)
	assert.Zero(t, l.Step, "default training pass was swapped out")
}
