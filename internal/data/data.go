// Package data provides datasets and a prefetching batch loader for
// the training loop.
//
// A Dataset is an indexed collection of (feature vector, class label)
// examples; the Loader draws index permutations, assembles batches into
// device tensors on worker goroutines, and streams them over a channel:
//
//	loader := data.NewLoader(dataset, backend, data.LoaderConfig{
//	    BatchSize: 32,
//	    Shuffle:   true,
//	})
//	for batch := range loader.Batches(ctx) {
//	    // batch.X is [n, features] float32, batch.Y is [n] int32
//	}
//	if err := loader.Err(); err != nil {
//	    return err
//	}
package data

import (
	"fmt"
)

// Dataset is an indexed collection of feature/label examples. At must
// be safe for concurrent calls; loader workers read in parallel.
type Dataset interface {
	// Len returns the number of examples.
	Len() int

	// Features returns the feature vector width.
	Features() int

	// At returns example i: a feature vector of exactly Features()
	// values and a class label.
	At(i int) (x []float32, y int32, err error)
}

// TensorDataset serves examples from flat in-memory slices.
type TensorDataset struct {
	x        []float32
	y        []int32
	features int
}

// NewTensorDataset wraps row-major features (len(y)×features values)
// and labels.
func NewTensorDataset(x []float32, y []int32, features int) (*TensorDataset, error) {
	if features <= 0 {
		return nil, fmt.Errorf("data: features must be positive, got %d", features)
	}
	if len(x) != len(y)*features {
		return nil, fmt.Errorf("data: %d feature values do not tile %d examples of width %d",
			len(x), len(y), features)
	}
	return &TensorDataset{x: x, y: y, features: features}, nil
}

// Len returns the number of examples.
func (d *TensorDataset) Len() int { return len(d.y) }

// Features returns the feature vector width.
func (d *TensorDataset) Features() int { return d.features }

// At returns example i. The returned slice aliases the dataset's
// backing array; callers must not mutate it.
func (d *TensorDataset) At(i int) ([]float32, int32, error) {
	if i < 0 || i >= len(d.y) {
		return nil, 0, fmt.Errorf("data: index %d out of range [0, %d)", i, len(d.y))
	}
	return d.x[i*d.features : (i+1)*d.features], d.y[i], nil
}
