package checkpoint_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-ml/anvil/internal/checkpoint"
	"github.com/anvil-ml/anvil/internal/tensor"
)

func rawF32(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), data)
	return raw
}

func rawI32(t *testing.T, shape tensor.Shape, data []int32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsInt32(), data)
	return raw
}

func sampleState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	return map[string]*tensor.RawTensor{
		"model.0.weight": rawF32(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}),
		"model.0.bias":   rawF32(t, tensor.Shape{2}, []float32{0.5, -0.5}),
		"optim.m.0":      rawF32(t, tensor.Shape{2, 2}, []float32{0.1, 0.2, 0.3, 0.4}),
		"labels":         rawI32(t, tensor.Shape{3}, []int32{7, 8, 9}),
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.anvl")
	state := sampleState(t)
	meta := checkpoint.Meta{
		RunID:           "run-42",
		Epoch:           3,
		Step:            1200,
		Loss:            0.25,
		OptimizerType:   "sgd",
		OptimizerConfig: map[string]float64{"lr": 0.01, "momentum": 0.9},
		CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, checkpoint.Save(path, state, meta))

	loaded, gotMeta, err := checkpoint.Load(path, tensor.CPU)
	require.NoError(t, err)
	require.Len(t, loaded, len(state))

	for name, want := range state {
		got, ok := loaded[name]
		require.True(t, ok, "tensor %q missing after load", name)
		assert.True(t, got.Shape().Equal(want.Shape()), "tensor %q shape", name)
		assert.Equal(t, want.DType(), got.DType(), "tensor %q dtype", name)
		assert.Equal(t, want.Data(), got.Data(), "tensor %q bytes", name)
	}

	assert.Equal(t, meta.RunID, gotMeta.RunID)
	assert.Equal(t, meta.Epoch, gotMeta.Epoch)
	assert.Equal(t, meta.Step, gotMeta.Step)
	assert.Equal(t, meta.Loss, gotMeta.Loss)
	assert.Equal(t, meta.OptimizerType, gotMeta.OptimizerType)
	assert.Equal(t, meta.OptimizerConfig, gotMeta.OptimizerConfig)
	assert.True(t, meta.CreatedAt.Equal(gotMeta.CreatedAt))
}

func TestWrite_DeterministicBytes(t *testing.T) {
	state := sampleState(t)
	meta := checkpoint.Meta{Epoch: 1, CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}

	var a, b bytes.Buffer
	require.NoError(t, checkpoint.Write(&a, state, meta))
	require.NoError(t, checkpoint.Write(&b, state, meta))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWrite_PayloadAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, checkpoint.Write(&buf, sampleState(t), checkpoint.Meta{}))

	raw := buf.Bytes()
	payloadLen := binary.LittleEndian.Uint64(raw[24:32])
	payloadStart := len(raw) - int(payloadLen)
	assert.Zero(t, payloadStart%64, "payload should start on a 64-byte boundary")
}

func TestWrite_SetsCreatedAt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, checkpoint.Write(&buf, sampleState(t), checkpoint.Meta{}))

	_, meta, err := checkpoint.Read(&buf, tensor.CPU)
	require.NoError(t, err)
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestWrite_OptimizerFlag(t *testing.T) {
	var with, without bytes.Buffer
	require.NoError(t, checkpoint.Write(&with, sampleState(t), checkpoint.Meta{OptimizerType: "adam"}))
	require.NoError(t, checkpoint.Write(&without, sampleState(t), checkpoint.Meta{}))

	withFlags := binary.LittleEndian.Uint32(with.Bytes()[8:12])
	withoutFlags := binary.LittleEndian.Uint32(without.Bytes()[8:12])
	assert.NotZero(t, withFlags&checkpoint.FlagHasOptimizer)
	assert.Zero(t, withoutFlags&checkpoint.FlagHasOptimizer)
}

func TestWrite_RejectsHostileNames(t *testing.T) {
	for _, name := range []string{"../escape", "a/b", `a\b`, ""} {
		state := map[string]*tensor.RawTensor{
			name: rawF32(t, tensor.Shape{1}, []float32{1}),
		}
		err := checkpoint.Write(&bytes.Buffer{}, state, checkpoint.Meta{})
		var verr *checkpoint.ValidationError
		require.ErrorAs(t, err, &verr, "name %q should be rejected", name)
	}
}

func TestRoundTrip_EmptyState(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, checkpoint.Write(&buf, nil, checkpoint.Meta{Epoch: 5}))

	state, meta, err := checkpoint.Read(&buf, tensor.CPU)
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.Equal(t, 5, meta.Epoch)
}

func TestLoad_DetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.anvl")
	require.NoError(t, checkpoint.Save(path, sampleState(t), checkpoint.Meta{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, _, err = checkpoint.Load(path, tensor.CPU)
	assert.ErrorIs(t, err, checkpoint.ErrChecksumMismatch)
}

func TestLoad_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.anvl")
	require.NoError(t, checkpoint.Save(path, sampleState(t), checkpoint.Meta{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(raw[0:4], "JUNK")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, _, err = checkpoint.Load(path, tensor.CPU)
	assert.ErrorIs(t, err, checkpoint.ErrInvalidMagic)
}

func TestLoad_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.anvl")
	require.NoError(t, checkpoint.Save(path, sampleState(t), checkpoint.Meta{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(raw[4:8], 99)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, _, err = checkpoint.Load(path, tensor.CPU)
	assert.ErrorIs(t, err, checkpoint.ErrUnsupportedVersion)
}

func TestLoad_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.anvl")
	require.NoError(t, checkpoint.Save(path, sampleState(t), checkpoint.Meta{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)/2], 0o644))

	_, _, err = checkpoint.Load(path, tensor.CPU)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := checkpoint.Load(filepath.Join(t.TempDir(), "nope.anvl"), tensor.CPU)
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peek.anvl")
	meta := checkpoint.Meta{RunID: "abc", Epoch: 9, Step: 77, Loss: 1.5}
	require.NoError(t, checkpoint.Save(path, sampleState(t), meta))

	got, err := checkpoint.Peek(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.RunID)
	assert.Equal(t, 9, got.Epoch)
	assert.Equal(t, int64(77), got.Step)
	assert.Equal(t, 1.5, got.Loss)
}

func errorsIsValidation(err error) bool {
	var verr *checkpoint.ValidationError
	return errors.As(err, &verr)
}

func TestRead_RejectsOversizedTable(t *testing.T) {
	var buf bytes.Buffer
	state := map[string]*tensor.RawTensor{
		"w": rawF32(t, tensor.Shape{2}, []float32{1, 2}),
	}
	require.NoError(t, checkpoint.Write(&buf, state, checkpoint.Meta{}))

	// Shrink the payload length field so the single tensor no longer fits.
	raw := buf.Bytes()
	binary.LittleEndian.PutUint64(raw[24:32], 4)

	_, _, err := checkpoint.Read(bytes.NewReader(raw), tensor.CPU)
	require.Error(t, err)
	assert.True(t, errorsIsValidation(err), "want ValidationError, got %v", err)
}
