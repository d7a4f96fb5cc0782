package data

import (
	"fmt"
	"math/rand"
)

// Blobs is a synthetic classification dataset: isotropic Gaussian
// clusters, one per class, with labels assigned round-robin. The same
// seed always produces the same data, which makes it the stock dataset
// for examples and loop tests.
type Blobs struct {
	x        []float32
	y        []int32
	features int
}

// BlobsConfig shapes the generated data. Zero values take defaults.
type BlobsConfig struct {
	Samples  int     // number of examples (default 1000)
	Classes  int     // number of clusters (default 2)
	Features int     // feature vector width (default 2)
	Spread   float64 // cluster standard deviation (default 0.5)
	Seed     int64   // rng seed (default 1)
}

// NewBlobs generates a Blobs dataset.
func NewBlobs(config BlobsConfig) *Blobs {
	if config.Samples == 0 {
		config.Samples = 1000
	}
	if config.Classes == 0 {
		config.Classes = 2
	}
	if config.Features == 0 {
		config.Features = 2
	}
	if config.Spread == 0 {
		config.Spread = 0.5
	}
	if config.Seed == 0 {
		config.Seed = 1
	}

	//nolint:gosec // math/rand for synthetic data (not security-critical)
	rng := rand.New(rand.NewSource(config.Seed))

	// Class centers spread over [-3, 3] per feature.
	centers := make([]float64, config.Classes*config.Features)
	for i := range centers {
		centers[i] = rng.Float64()*6 - 3
	}

	x := make([]float32, config.Samples*config.Features)
	y := make([]int32, config.Samples)
	for i := 0; i < config.Samples; i++ {
		class := i % config.Classes
		y[i] = int32(class)
		for f := 0; f < config.Features; f++ {
			center := centers[class*config.Features+f]
			x[i*config.Features+f] = float32(center + rng.NormFloat64()*config.Spread)
		}
	}

	return &Blobs{x: x, y: y, features: config.Features}
}

// Len returns the number of examples.
func (b *Blobs) Len() int { return len(b.y) }

// Features returns the feature vector width.
func (b *Blobs) Features() int { return b.features }

// At returns example i.
func (b *Blobs) At(i int) ([]float32, int32, error) {
	if i < 0 || i >= len(b.y) {
		return nil, 0, fmt.Errorf("data: index %d out of range [0, %d)", i, len(b.y))
	}
	return b.x[i*b.features : (i+1)*b.features], b.y[i], nil
}

// Split carves the dataset into train and validation parts, the first
// (1-frac) of examples and the remaining frac.
func (b *Blobs) Split(frac float64) (*Blobs, *Blobs) {
	if frac < 0 || frac > 1 {
		panic(fmt.Sprintf("data: split fraction %v outside [0, 1]", frac))
	}
	cut := int(float64(len(b.y)) * (1 - frac))
	train := &Blobs{x: b.x[:cut*b.features], y: b.y[:cut], features: b.features}
	valid := &Blobs{x: b.x[cut*b.features:], y: b.y[cut:], features: b.features}
	return train, valid
}
