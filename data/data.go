// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package data

import (
	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Dataset is an indexed source of examples.
type Dataset = data.Dataset

// TensorDataset serves examples from in-memory feature and label
// slices.
type TensorDataset = data.TensorDataset

// NewTensorDataset wraps flat features x (row-major, features per row)
// and labels y.
func NewTensorDataset(x []float32, y []int32, features int) (*TensorDataset, error) {
	return data.NewTensorDataset(x, y, features)
}

// Blobs is a synthetic classification dataset of Gaussian clusters,
// one cluster per class.
type Blobs = data.Blobs

// BlobsConfig shapes the generated clusters. Zero values take defaults.
type BlobsConfig = data.BlobsConfig

// NewBlobs generates a Blobs dataset.
//
// Example:
//
//	blobs := data.NewBlobs(data.BlobsConfig{
//	    Samples: 1000,
//	    Classes: 3,
//	    Spread:  0.5,
//	    Seed:    42,
//	})
func NewBlobs(config BlobsConfig) *Blobs {
	return data.NewBlobs(config)
}

// TextDataset serves labeled text examples vectorized into fixed-width
// BPE token-count features.
type TextDataset = data.TextDataset

// NewTextDataset tokenizes texts and buckets token ids into features
// counts per example.
func NewTextDataset(texts []string, labels []int32, features int) (*TextDataset, error) {
	return data.NewTextDataset(texts, labels, features)
}

// Batch is one assembled training batch.
type Batch[B tensor.Backend] = data.Batch[B]

// Loader draws batches from a dataset, optionally shuffling and
// assembling on worker goroutines.
type Loader[B tensor.Backend] = data.Loader[B]

// LoaderConfig shapes batch assembly. Zero values take defaults.
type LoaderConfig = data.LoaderConfig

// NewLoader creates a loader over dataset with batches placed on
// backend's device.
//
// Example:
//
//	loader := data.NewLoader(trainSet, backend, data.LoaderConfig{
//	    BatchSize: 64,
//	    Shuffle:   true,
//	    Workers:   4,
//	})
func NewLoader[B tensor.Backend](dataset Dataset, backend B, config LoaderConfig) *Loader[B] {
	return data.NewLoader(dataset, backend, config)
}
