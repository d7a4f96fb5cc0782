// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package data provides datasets and the batch loader feeding the
// training loop.
//
// # Overview
//
// This package contains:
//   - Dataset: the minimal example-source contract
//   - TensorDataset: in-memory features and labels
//   - Blobs: synthetic Gaussian clusters for classification demos
//   - TextDataset: labeled text vectorized through BPE token counts
//   - Loader: shuffling, parallel batch assembly, prefetch
//
// # Basic Usage
//
//	import (
//	    "github.com/anvil-ml/anvil/backend/cpu"
//	    "github.com/anvil-ml/anvil/data"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    blobs := data.NewBlobs(data.BlobsConfig{
//	        Samples: 1000,
//	        Classes: 3,
//	        Seed:    42,
//	    })
//	    trainSet, validSet := blobs.Split(0.2)
//
//	    loader := data.NewLoader(trainSet, backend, data.LoaderConfig{
//	        BatchSize: 64,
//	        Shuffle:   true,
//	    })
//
//	    for batch := range loader.Batches(ctx) {
//	        // batch.X is [Size, features], batch.Y is [Size]
//	    }
//	    if err := loader.Err(); err != nil {
//	        // a worker failed or the context was canceled
//	    }
//	}
//
// # Custom Datasets
//
// Anything implementing Dataset feeds a Loader:
//
//	type Dataset interface {
//	    Len() int
//	    Features() int
//	    At(i int) ([]float32, int32, error)
//	}
//
// At may do real work (read a file, decode an image); the loader's
// worker pool overlaps that work with training when Workers > 1.
package data
