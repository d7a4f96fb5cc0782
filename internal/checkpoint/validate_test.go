package checkpoint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"w", "model.0.weight", "optim.velocity.12"} {
		assert.NoError(t, validateName(name), "name %q", name)
	}

	cases := map[string]string{
		"":                       "invalid_name",
		"../../etc/passwd":       "invalid_name",
		"a/b":                    "invalid_name",
		`a\b`:                    "invalid_name",
		"nul\x00byte":            "invalid_name",
		"weights/../x":           "invalid_name",
		strings.Repeat("x", 513): "name_too_long",
	}
	for name, wantType := range cases {
		err := validateName(name)
		require.Error(t, err, "name %q", name)
		verr, ok := err.(*ValidationError)
		require.True(t, ok)
		assert.Equal(t, wantType, verr.Type, "name %q", name)
	}
}

func TestValidateTensors_OK(t *testing.T) {
	tensors := []TensorMeta{
		{Name: "a", Offset: 0, Size: 8},
		{Name: "b", Offset: 8, Size: 4},
		{Name: "c", Offset: 12, Size: 0},
	}
	assert.NoError(t, validateTensors(tensors, 12))
}

func TestValidateTensors_Overlap(t *testing.T) {
	tensors := []TensorMeta{
		{Name: "a", Offset: 0, Size: 8},
		{Name: "b", Offset: 4, Size: 8},
	}
	err := validateTensors(tensors, 16)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "offset_overlap", verr.Type)
}

func TestValidateTensors_OutOfBounds(t *testing.T) {
	tensors := []TensorMeta{{Name: "a", Offset: 8, Size: 16}}
	err := validateTensors(tensors, 16)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "out_of_bounds", verr.Type)
}

func TestValidateTensors_NegativeOffset(t *testing.T) {
	tensors := []TensorMeta{{Name: "a", Offset: -4, Size: 8}}
	err := validateTensors(tensors, 16)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "negative_offset", verr.Type)
}

func TestValidateTensors_TooMany(t *testing.T) {
	tensors := make([]TensorMeta, MaxTensorCount+1)
	for i := range tensors {
		tensors[i] = TensorMeta{Name: "t", Offset: int64(i), Size: 1}
	}
	err := validateTensors(tensors, int64(len(tensors)))
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "too_many_tensors", verr.Type)
}

func TestPadding(t *testing.T) {
	assert.Equal(t, 0, padding(0))
	assert.Equal(t, 0, padding(64))
	assert.Equal(t, 0, padding(128))
	assert.Equal(t, 63, padding(1))
	assert.Equal(t, 1, padding(127))
}
