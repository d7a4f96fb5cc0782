// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint reads and writes ANVL files, the native snapshot
// format for Anvil models and training state.
//
// # Overview
//
// An ANVL file is a fixed binary header, a JSON tensor table with
// training metadata, and an aligned payload of raw tensor bytes. The
// payload is covered by a SHA-256 checksum verified on every load, and
// tensors are written in sorted name order so saving the same state
// twice produces identical bytes.
//
// # Basic Usage
//
//	import (
//	    "github.com/anvil-ml/anvil/checkpoint"
//	    "github.com/anvil-ml/anvil/tensor"
//	)
//
//	// Save model weights with run metadata.
//	state := model.StateDict()
//	meta := checkpoint.Meta{RunID: runID, Epoch: 3, Step: 1200, Loss: 0.041}
//	if err := checkpoint.Save("run.anvl", state, meta); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Load them back onto a device.
//	state, meta, err := checkpoint.Load("run.anvl", tensor.CPU)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := model.LoadStateDict(state); err != nil {
//	    log.Fatal(err)
//	}
//
// Peek reads only the metadata, for inspecting a file without paying
// for its payload. The train package layers Learner.SaveCheckpoint and
// Learner.LoadCheckpoint on top of this package, bundling model and
// optimizer state into one file.
package checkpoint

import (
	"io"

	"github.com/anvil-ml/anvil/internal/checkpoint"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Format constants.
const (
	Magic         = checkpoint.Magic
	FormatVersion = checkpoint.FormatVersion
)

// FlagHasOptimizer marks files whose state includes optimizer tensors.
const FlagHasOptimizer = checkpoint.FlagHasOptimizer

// Meta records the training state stored alongside the tensors.
type Meta = checkpoint.Meta

// TensorMeta locates one tensor inside the payload.
type TensorMeta = checkpoint.TensorMeta

// Errors returned when a file cannot be decoded.
var (
	ErrInvalidMagic       = checkpoint.ErrInvalidMagic
	ErrUnsupportedVersion = checkpoint.ErrUnsupportedVersion
	ErrHeaderTooLarge     = checkpoint.ErrHeaderTooLarge
	ErrChecksumMismatch   = checkpoint.ErrChecksumMismatch
)

// ValidationError reports a structural problem with the tensor table,
// such as overlapping regions or a hostile tensor name.
type ValidationError = checkpoint.ValidationError

// Save writes state and meta to an ANVL file at path, creating parent
// directories as needed.
func Save(path string, state map[string]*tensor.RawTensor, meta Meta) error {
	return checkpoint.Save(path, state, meta)
}

// Write streams an ANVL file to w.
func Write(w io.Writer, state map[string]*tensor.RawTensor, meta Meta) error {
	return checkpoint.Write(w, state, meta)
}

// Load reads an ANVL file, materializing tensors on device.
func Load(path string, device tensor.Device) (map[string]*tensor.RawTensor, Meta, error) {
	return checkpoint.Load(path, device)
}

// Read decodes an ANVL stream, materializing tensors on device.
func Read(r io.Reader, device tensor.Device) (map[string]*tensor.RawTensor, Meta, error) {
	return checkpoint.Read(r, device)
}

// Peek reads only the metadata from an ANVL file.
func Peek(path string) (Meta, error) {
	return checkpoint.Peek(path)
}
