package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Load reads the ANVL file at path, materializing tensors on device.
func Load(path string, device tensor.Device) (map[string]*tensor.RawTensor, Meta, error) {
	//nolint:gosec // G304: the path is where the caller stored the snapshot
	f, err := os.Open(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()
	return Read(f, device)
}

// Read parses an ANVL stream. The tensor table is validated before any
// payload bytes are trusted, and the payload checksum is verified
// before tensors are materialized.
func Read(r io.Reader, device tensor.Device) (map[string]*tensor.RawTensor, Meta, error) {
	fixed := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: read fixed header: %w", err)
	}
	if string(fixed[0:4]) != Magic {
		return nil, Meta{}, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, Meta{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	headerLen := binary.LittleEndian.Uint64(fixed[16:24])
	payloadLen := binary.LittleEndian.Uint64(fixed[24:32])
	if headerLen > MaxHeaderSize {
		return nil, Meta{}, ErrHeaderTooLarge
	}
	var stored [checksumSize]byte
	copy(stored[:], fixed[checksumOffset:checksumOffset+checksumSize])

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: read header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: parse header: %w", err)
	}

	if pad := padding(fixedHeaderSize + int(headerLen)); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, Meta{}, fmt.Errorf("checkpoint: skip padding: %w", err)
		}
	}

	//nolint:gosec // G115: payloadLen was written by us as a non-negative length
	if err := validateTensors(hdr.Tensors, int64(payloadLen)); err != nil {
		return nil, Meta{}, err
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: read payload: %w", err)
	}
	if sha256.Sum256(payload) != stored {
		return nil, Meta{}, ErrChecksumMismatch
	}

	state := make(map[string]*tensor.RawTensor, len(hdr.Tensors))
	for _, tm := range hdr.Tensors {
		dtype, ok := tensor.ParseDataType(tm.DType)
		if !ok {
			return nil, Meta{}, &ValidationError{Type: "unknown_dtype", Tensor: tm.Name, Details: tm.DType}
		}
		shape := tensor.Shape(tm.Shape)
		if err := shape.Validate(); err != nil {
			return nil, Meta{}, &ValidationError{Type: "invalid_shape", Tensor: tm.Name, Details: err.Error()}
		}
		if want := int64(shape.NumElements() * dtype.Size()); want != tm.Size {
			return nil, Meta{}, &ValidationError{
				Type:    "size_mismatch",
				Tensor:  tm.Name,
				Details: fmt.Sprintf("table says %d bytes, shape %v needs %d", tm.Size, tm.Shape, want),
			}
		}
		raw, err := tensor.NewRaw(shape, dtype, device)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("checkpoint: tensor %q: %w", tm.Name, err)
		}
		copy(raw.Data(), payload[tm.Offset:tm.Offset+tm.Size])
		state[tm.Name] = raw
	}
	return state, hdr.Meta, nil
}

// Peek reads only the meta of the ANVL file at path, without
// materializing or checksumming the payload. Useful for listing
// checkpoints.
func Peek(path string) (Meta, error) {
	//nolint:gosec // G304: the path is where the caller stored the snapshot
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()

	fixed := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return Meta{}, fmt.Errorf("checkpoint: read fixed header: %w", err)
	}
	if string(fixed[0:4]) != Magic {
		return Meta{}, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return Meta{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	headerLen := binary.LittleEndian.Uint64(fixed[16:24])
	if headerLen > MaxHeaderSize {
		return Meta{}, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerJSON); err != nil {
		return Meta{}, fmt.Errorf("checkpoint: read header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Meta{}, fmt.Errorf("checkpoint: parse header: %w", err)
	}
	return hdr.Meta, nil
}
