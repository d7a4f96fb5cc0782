package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Save writes state and meta to an ANVL file at path. An existing file
// is truncated.
func Save(path string, state map[string]*tensor.RawTensor, meta Meta) error {
	//nolint:gosec // G304: the path is where the caller wants the snapshot
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := Write(f, state, meta); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Write serializes state in ANVL format. Tensors are laid out in sorted
// name order so that identical state produces identical bytes. A zero
// meta.CreatedAt is filled with the current time.
func Write(w io.Writer, state map[string]*tensor.RawTensor, meta Meta) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	names := make([]string, 0, len(state))
	for name := range state {
		if err := validateName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	hdr := header{
		Version: FormatVersion,
		Meta:    meta,
		Tensors: make([]TensorMeta, 0, len(names)),
	}

	var payload []byte
	for _, name := range names {
		raw := state[name]
		data := raw.Data()
		hdr.Tensors = append(hdr.Tensors, TensorMeta{
			Name:   name,
			DType:  raw.DType().String(),
			Shape:  raw.Shape(),
			Offset: int64(len(payload)),
			Size:   int64(len(data)),
		})
		payload = append(payload, data...)
	}

	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	checksum := sha256.Sum256(payload)

	fixed := make([]byte, fixedHeaderSize)
	copy(fixed[0:4], Magic)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	var flags uint32
	if meta.OptimizerType != "" {
		flags |= FlagHasOptimizer
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(payload)))
	copy(fixed[checksumOffset:checksumOffset+checksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("checkpoint: write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("checkpoint: write header: %w", err)
	}
	if pad := padding(fixedHeaderSize + len(headerJSON)); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("checkpoint: write padding: %w", err)
		}
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("checkpoint: write payload: %w", err)
	}
	return nil
}
