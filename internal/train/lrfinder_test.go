package train_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-ml/anvil/internal/tensor"
	"github.com/anvil-ml/anvil/internal/train"
)

func TestFindLR_SweepsAndRestores(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	loader := blobsLoader(backend, 64, 16)

	before := paramData(l)
	lrBefore := l.LR()

	finder, err := train.FindLR(context.Background(), l, loader, train.LRFinderConfig{
		Start: 1e-5,
		End:   1,
		Steps: 20,
		Beta:  0.5,
	})
	require.NoError(t, err)

	lrs, losses := finder.Results()
	require.NotEmpty(t, lrs)
	require.Len(t, losses, len(lrs))
	assert.LessOrEqual(t, len(lrs), 20)
	for i := 1; i < len(lrs); i++ {
		assert.Greater(t, lrs[i], lrs[i-1], "sweep must increase the rate")
	}

	assert.Equal(t, before, paramData(l), "sweep must not leave weight updates behind")
	assert.InDelta(t, float64(lrBefore), float64(l.LR()), 1e-9)
	assert.Zero(t, l.Step)
	assert.Empty(t, l.Callbacks(), "finder detaches itself")
}

func TestLRFinder_StopsOnDivergence(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	finder := train.NewLRFinder[recB](train.LRFinderConfig{Steps: 50, Beta: 0.5})
	require.NoError(t, finder.OnBeforeFit(l))

	l.Training = true
	feed := func(v float32) error {
		l.Loss = tensor.Full[float32](tensor.Shape{1}, v, backend)
		return finder.OnAfterLoss(l)
	}

	require.NoError(t, feed(1.0))
	require.NoError(t, feed(1.0))
	assert.ErrorIs(t, feed(100.0), train.ErrCancelFit)
}

func TestLRFinder_StopsAtStepLimit(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	finder := train.NewLRFinder[recB](train.LRFinderConfig{Steps: 3, Beta: 0.5})
	require.NoError(t, finder.OnBeforeFit(l))

	l.Training = true
	feed := func(v float32) error {
		l.Loss = tensor.Full[float32](tensor.Shape{1}, v, backend)
		return finder.OnAfterLoss(l)
	}

	require.NoError(t, feed(1.0))
	require.NoError(t, feed(0.9))
	assert.ErrorIs(t, feed(0.8), train.ErrCancelFit)
}

func TestLRFinder_SuggestPicksSteepestDescent(t *testing.T) {
	backend := newBackend()
	l := newTestLearner(backend)
	finder := train.NewLRFinder[recB](train.LRFinderConfig{Steps: 50, Beta: 0.5})
	require.NoError(t, finder.OnBeforeFit(l))

	l.Training = true
	for i, v := range []float32{10, 9, 8, 4, 1, 0.9, 0.85, 0.84} {
		l.SetLR(0.01 * float32(i+1))
		l.Loss = tensor.Full[float32](tensor.Shape{1}, v, backend)
		require.NoError(t, finder.OnAfterLoss(l))
	}

	lr, ok := finder.Suggest()
	require.True(t, ok)
	assert.InDelta(t, 0.04, lr, 1e-6, "steepest smoothed drop sits at the fourth step")
}

func TestLRFinder_SuggestNeedsEnoughPoints(t *testing.T) {
	finder := train.NewLRFinder[recB](train.LRFinderConfig{})
	_, ok := finder.Suggest()
	assert.False(t, ok)
}
