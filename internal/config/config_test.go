package config_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-ml/anvil/internal/config"
)

func TestDefault_Validates(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.NotEmpty(t, cfg.Run.ID, "validate assigns a run id")
	assert.Equal(t, "valid_loss", cfg.Train.Monitor)
	assert.Equal(t, "cpu", cfg.Run.Device)
}

func TestValidate_KeepsExplicitRunID(t *testing.T) {
	cfg := config.Default()
	cfg.Run.ID = "run-explicit"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "run-explicit", cfg.Run.ID)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
optim:
  lr: 0.001
  type: adam
train:
  epochs: 3
`))
	require.NoError(t, err)

	want := config.Default()
	want.Optim.LR = 0.001
	want.Optim.Type = "adam"
	want.Train.Epochs = 3

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse([]byte("trian:\n  epochs: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trian")
}

func TestParse_EmptyIsDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Run.ID = "run-rt"
	cfg.Data.BatchSize = 64
	cfg.Model.Hidden = []int{128}
	cfg.Train.CheckpointDir = "ckpts"

	path := filepath.Join(t.TempDir(), "runs", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.ApplyOverrides(config.Overrides{
		RunID:     "run-o",
		Epochs:    7,
		BatchSize: 128,
		LR:        0.5,
		StopFile:  "STOP",
	})

	assert.Equal(t, "run-o", cfg.Run.ID)
	assert.Equal(t, 7, cfg.Train.Epochs)
	assert.Equal(t, 128, cfg.Data.BatchSize)
	assert.InDelta(t, 0.5, cfg.Optim.LR, 1e-9)
	assert.Equal(t, "STOP", cfg.Train.StopFile)

	before := *cfg
	cfg.ApplyOverrides(config.Overrides{})
	if diff := cmp.Diff(&before, cfg); diff != "" {
		t.Errorf("zero overrides must not change anything (-want +got):\n%s", diff)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]struct {
		mutate func(*config.Config)
		want   string
	}{
		"bad device": {
			func(c *config.Config) { c.Run.Device = "tpu" },
			"unknown device",
		},
		"bad dataset": {
			func(c *config.Config) { c.Data.Dataset = "imagenet" },
			"unknown dataset",
		},
		"no samples": {
			func(c *config.Config) { c.Data.Samples = 0 },
			"samples must be positive",
		},
		"one class": {
			func(c *config.Config) { c.Data.Classes = 1 },
			"at least 2 classes",
		},
		"bad valid frac": {
			func(c *config.Config) { c.Data.ValidFrac = 1 },
			"valid_frac",
		},
		"bad hidden": {
			func(c *config.Config) { c.Model.Hidden = []int{64, 0} },
			"hidden[1]",
		},
		"bad dropout": {
			func(c *config.Config) { c.Model.Dropout = 1 },
			"dropout",
		},
		"bad optimizer": {
			func(c *config.Config) { c.Optim.Type = "lion" },
			"unknown optimizer",
		},
		"zero lr": {
			func(c *config.Config) { c.Optim.LR = 0 },
			"lr must be positive",
		},
		"bad momentum": {
			func(c *config.Config) { c.Optim.Momentum = 1 },
			"momentum",
		},
		"bad scheduler": {
			func(c *config.Config) { c.Optim.Scheduler = "linear" },
			"unknown scheduler",
		},
		"step scheduler without size": {
			func(c *config.Config) { c.Optim.Scheduler = "step" },
			"step_size",
		},
		"zero epochs": {
			func(c *config.Config) { c.Train.Epochs = 0 },
			"epochs must be positive",
		},
		"monitor without validation split": {
			func(c *config.Config) {
				c.Train.SaveBest = true
				c.Data.ValidFrac = 0
			},
			"valid_frac > 0",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
