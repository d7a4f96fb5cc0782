package data

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Batch is one assembled training batch.
type Batch[B tensor.Backend] struct {
	X     *tensor.Tensor[float32, B] // [Size, features]
	Y     *tensor.Tensor[int32, B]   // [Size]
	Index int                        // batch number within the pass
	Size  int                        // rows in this batch
}

// Loader draws batches from a dataset. Assembly runs on worker
// goroutines coordinated by an errgroup so slow At implementations
// (disk, decode) overlap with training; Prefetch bounds how far ahead
// the workers run.
//
// A Loader supports one Batches stream at a time; Err reports the
// stream's outcome after its channel closes.
type Loader[B tensor.Backend] struct {
	dataset Dataset
	backend B
	config  LoaderConfig
	rng     *rand.Rand

	mu  sync.Mutex
	err error
}

// LoaderConfig shapes batch assembly. Zero values take defaults.
type LoaderConfig struct {
	BatchSize int   // examples per batch (default 32)
	Shuffle   bool  // reshuffle example order every pass
	DropLast  bool  // drop the final short batch
	Workers   int   // assembly goroutines (default 1; >1 reorders batches)
	Prefetch  int   // channel buffer in batches (default 2)
	Seed      int64 // shuffle seed (default 1)
}

// NewLoader creates a loader over dataset with batches placed on
// backend's device.
func NewLoader[B tensor.Backend](dataset Dataset, backend B, config LoaderConfig) *Loader[B] {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Prefetch <= 0 {
		config.Prefetch = 2
	}
	if config.Seed == 0 {
		config.Seed = 1
	}

	return &Loader[B]{
		dataset: dataset,
		backend: backend,
		config:  config,
		//nolint:gosec // math/rand for shuffling (not security-critical)
		rng: rand.New(rand.NewSource(config.Seed)),
	}
}

// NumBatches returns the batches per pass.
func (l *Loader[B]) NumBatches() int {
	n := l.dataset.Len() / l.config.BatchSize
	if !l.config.DropLast && l.dataset.Len()%l.config.BatchSize != 0 {
		n++
	}
	return n
}

// BatchSize returns the configured batch size.
func (l *Loader[B]) BatchSize() int { return l.config.BatchSize }

// Batches streams one pass over the dataset. The channel closes when
// the pass completes, fails, or ctx is canceled; check Err afterwards.
func (l *Loader[B]) Batches(ctx context.Context) <-chan Batch[B] {
	order := make([]int, l.dataset.Len())
	for i := range order {
		order[i] = i
	}
	if l.config.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	numBatches := l.NumBatches()

	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()

	out := make(chan Batch[B], l.config.Prefetch)
	indexes := make(chan int)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(indexes)
		for b := 0; b < numBatches; b++ {
			select {
			case indexes <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < l.config.Workers; w++ {
		g.Go(func() error {
			for b := range indexes {
				batch, err := l.assemble(order, b)
				if err != nil {
					return err
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		err := g.Wait()
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(out)
	}()
	return out
}

// Err reports why the last Batches stream ended: nil after a full pass,
// the dataset or context error otherwise. Valid once the stream's
// channel has closed.
func (l *Loader[B]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// assemble builds batch index from the example order.
func (l *Loader[B]) assemble(order []int, index int) (Batch[B], error) {
	start := index * l.config.BatchSize
	end := min(start+l.config.BatchSize, len(order))
	rows := order[start:end]
	features := l.dataset.Features()

	xraw, err := tensor.NewRaw(tensor.Shape{len(rows), features}, tensor.Float32, l.backend.Device())
	if err != nil {
		return Batch[B]{}, fmt.Errorf("data: batch %d features: %w", index, err)
	}
	yraw, err := tensor.NewRaw(tensor.Shape{len(rows)}, tensor.Int32, l.backend.Device())
	if err != nil {
		return Batch[B]{}, fmt.Errorf("data: batch %d labels: %w", index, err)
	}

	xdata := xraw.AsFloat32()
	ydata := yraw.AsInt32()
	for i, row := range rows {
		x, y, err := l.dataset.At(row)
		if err != nil {
			return Batch[B]{}, fmt.Errorf("data: example %d: %w", row, err)
		}
		if len(x) != features {
			return Batch[B]{}, fmt.Errorf("data: example %d has %d features, dataset reports %d",
				row, len(x), features)
		}
		copy(xdata[i*features:(i+1)*features], x)
		ydata[i] = y
	}

	return Batch[B]{
		X:     tensor.New[float32](xraw, l.backend),
		Y:     tensor.New[int32](yraw, l.backend),
		Index: index,
		Size:  len(rows),
	}, nil
}
