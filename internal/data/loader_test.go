package data_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// rampDataset is a tiny deterministic dataset: example i has features
// [i, i] and label i%2.
type rampDataset struct {
	n int
}

func (d *rampDataset) Len() int      { return d.n }
func (d *rampDataset) Features() int { return 2 }
func (d *rampDataset) At(i int) ([]float32, int32, error) {
	if i < 0 || i >= d.n {
		return nil, 0, errors.New("out of range")
	}
	return []float32{float32(i), float32(i)}, int32(i % 2), nil
}

// failingDataset errors on one example.
type failingDataset struct {
	rampDataset
	failAt int
}

func (d *failingDataset) At(i int) ([]float32, int32, error) {
	if i == d.failAt {
		return nil, 0, errors.New("corrupt example")
	}
	return d.rampDataset.At(i)
}

func TestLoader_FullPass(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := data.NewLoader(&rampDataset{n: 10}, cpu.New(), data.LoaderConfig{BatchSize: 4})
	assert.Equal(t, 3, loader.NumBatches())

	seen := make(map[float32]int)
	var sizes []int
	for batch := range loader.Batches(context.Background()) {
		assert.Equal(t, tensor.Shape{batch.Size, 2}, batch.X.Shape())
		assert.Equal(t, tensor.Shape{batch.Size}, batch.Y.Shape())

		xdata := batch.X.Data()
		ydata := batch.Y.Data()
		for i := 0; i < batch.Size; i++ {
			v := xdata[i*2]
			assert.Equal(t, xdata[i*2+1], v, "both features carry the index")
			assert.Equal(t, int32(int(v)%2), ydata[i], "label matches example")
			seen[v]++
		}
		sizes = append(sizes, batch.Size)
	}
	require.NoError(t, loader.Err())

	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Len(t, seen, 10, "every example exactly once")
	for v, count := range seen {
		assert.Equal(t, 1, count, "example %v repeated", v)
	}
}

func TestLoader_DropLast(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := data.NewLoader(&rampDataset{n: 10}, cpu.New(),
		data.LoaderConfig{BatchSize: 4, DropLast: true})
	assert.Equal(t, 2, loader.NumBatches())

	count := 0
	for batch := range loader.Batches(context.Background()) {
		assert.Equal(t, 4, batch.Size)
		count++
	}
	require.NoError(t, loader.Err())
	assert.Equal(t, 2, count)
}

func TestLoader_Shuffle(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := data.NewLoader(&rampDataset{n: 100}, cpu.New(),
		data.LoaderConfig{BatchSize: 100, Shuffle: true, Seed: 3})

	pass := func() []float32 {
		var got []float32
		for batch := range loader.Batches(context.Background()) {
			xdata := batch.X.Data()
			for i := 0; i < batch.Size; i++ {
				got = append(got, xdata[i*2])
			}
		}
		require.NoError(t, loader.Err())
		return got
	}

	first := pass()
	identity := make([]float32, 100)
	for i := range identity {
		identity[i] = float32(i)
	}
	assert.NotEqual(t, identity, first, "shuffle should permute")

	second := pass()
	assert.NotEqual(t, first, second, "every pass reshuffles")

	assert.Len(t, first, 100)
	assert.Len(t, second, 100)
}

func TestLoader_Workers(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := data.NewLoader(&rampDataset{n: 64}, cpu.New(),
		data.LoaderConfig{BatchSize: 8, Workers: 4, Prefetch: 4})

	seen := make(map[int]bool)
	for batch := range loader.Batches(context.Background()) {
		seen[batch.Index] = true
	}
	require.NoError(t, loader.Err())

	// Workers may reorder, but every batch index arrives once.
	assert.Len(t, seen, 8)
	for b := 0; b < 8; b++ {
		assert.True(t, seen[b], "batch %d missing", b)
	}
}

func TestLoader_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	loader := data.NewLoader(&rampDataset{n: 1000}, cpu.New(),
		data.LoaderConfig{BatchSize: 1, Prefetch: 1})

	batches := loader.Batches(ctx)
	<-batches
	cancel()
	for range batches {
		// Drain until the workers notice.
	}
	assert.ErrorIs(t, loader.Err(), context.Canceled)
}

func TestLoader_DatasetError(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := data.NewLoader(&failingDataset{rampDataset{n: 8}, 5}, cpu.New(),
		data.LoaderConfig{BatchSize: 2})

	for range loader.Batches(context.Background()) {
	}
	err := loader.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt example")
	assert.Contains(t, err.Error(), "example 5")
}
