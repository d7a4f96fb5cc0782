// Package config defines the YAML run configuration consumed by the
// anvil CLI: what data to train on, the model shape, the optimizer and
// the loop settings, in one versionable file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config captures one training run. Zero values defer to Default.
type Config struct {
	Run   Run   `yaml:"run"`
	Data  Data  `yaml:"data"`
	Model Model `yaml:"model"`
	Optim Optim `yaml:"optim"`
	Train Train `yaml:"train"`
}

// Run identifies and seeds the run.
type Run struct {
	// ID tags checkpoints and logs. Empty gets a fresh UUID during
	// Validate.
	ID     string `yaml:"id"`
	Seed   int64  `yaml:"seed"`
	Device string `yaml:"device"` // "cpu" or "webgpu"
}

// Data selects and shapes the dataset.
type Data struct {
	Dataset   string  `yaml:"dataset"` // "blobs"
	Samples   int     `yaml:"samples"`
	Classes   int     `yaml:"classes"`
	Features  int     `yaml:"features"`
	Spread    float64 `yaml:"spread"`
	ValidFrac float64 `yaml:"valid_frac"`
	BatchSize int     `yaml:"batch_size"`
	Workers   int     `yaml:"workers"`
	Shuffle   bool    `yaml:"shuffle"`
}

// Model shapes the MLP the CLI builds.
type Model struct {
	Hidden  []int   `yaml:"hidden"`
	Dropout float64 `yaml:"dropout"`
}

// Optim selects the optimizer and scheduler.
type Optim struct {
	Type        string  `yaml:"type"` // "sgd" or "adam"
	LR          float64 `yaml:"lr"`
	Momentum    float64 `yaml:"momentum"`
	WeightDecay float64 `yaml:"weight_decay"`
	Scheduler   string  `yaml:"scheduler"` // "", "step", "cosine" or "onecycle"
	StepSize    int     `yaml:"step_size"` // steps between decays ("step")
	Gamma       float64 `yaml:"gamma"`     // decay factor ("step")
}

// Train shapes the loop and its stock callbacks.
type Train struct {
	Epochs        int    `yaml:"epochs"`
	LogEvery      int    `yaml:"log_every"`
	CheckpointDir string `yaml:"checkpoint_dir"` // empty disables checkpoints
	SaveBest      bool   `yaml:"save_best"`
	Monitor       string `yaml:"monitor"`
	EarlyStop     int    `yaml:"early_stop"` // patience in epochs, 0 disables
	StopFile      string `yaml:"stop_file"`  // sentinel path, empty disables
}

// Overrides carries CLI flag values. Zero fields leave the config alone.
type Overrides struct {
	RunID         string
	Seed          int64
	Device        string
	Epochs        int
	BatchSize     int
	LR            float64
	CheckpointDir string
	StopFile      string
}

// Default returns the runnable baseline configuration.
func Default() *Config {
	return &Config{
		Run: Run{
			Seed:   42,
			Device: "cpu",
		},
		Data: Data{
			Dataset:   "blobs",
			Samples:   2048,
			Classes:   4,
			Features:  16,
			Spread:    0.5,
			ValidFrac: 0.2,
			BatchSize: 32,
			Workers:   2,
			Shuffle:   true,
		},
		Model: Model{
			Hidden:  []int{64, 32},
			Dropout: 0.1,
		},
		Optim: Optim{
			Type:     "sgd",
			LR:       0.05,
			Momentum: 0.9,
		},
		Train: Train{
			Epochs:   10,
			LogEvery: 50,
			Monitor:  "valid_loss",
		},
	}
}

// Load reads a config from a YAML file over the defaults. A missing
// file returns the defaults; unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the user's own config
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, rejecting unknown keys.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories. The CLI
// drops the effective config next to the run's checkpoints.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: configs are not secrets
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyOverrides folds non-zero CLI flags into the config.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.RunID != "" {
		c.Run.ID = o.RunID
	}
	if o.Seed != 0 {
		c.Run.Seed = o.Seed
	}
	if o.Device != "" {
		c.Run.Device = o.Device
	}
	if o.Epochs > 0 {
		c.Train.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.Data.BatchSize = o.BatchSize
	}
	if o.LR > 0 {
		c.Optim.LR = o.LR
	}
	if o.CheckpointDir != "" {
		c.Train.CheckpointDir = o.CheckpointDir
	}
	if o.StopFile != "" {
		c.Train.StopFile = o.StopFile
	}
}

// Validate checks the config is runnable and normalizes the soft
// fields: an empty run ID gets a UUID, an empty monitor falls back to
// "valid_loss".
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}

	switch c.Run.Device {
	case "cpu", "webgpu":
	default:
		return fmt.Errorf("config: unknown device %q (want cpu or webgpu)", c.Run.Device)
	}

	if c.Data.Dataset != "blobs" {
		return fmt.Errorf("config: unknown dataset %q (want blobs)", c.Data.Dataset)
	}
	if c.Data.Samples <= 0 {
		return fmt.Errorf("config: samples must be positive, got %d", c.Data.Samples)
	}
	if c.Data.Classes < 2 {
		return fmt.Errorf("config: need at least 2 classes, got %d", c.Data.Classes)
	}
	if c.Data.Features <= 0 {
		return fmt.Errorf("config: features must be positive, got %d", c.Data.Features)
	}
	if c.Data.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.Data.BatchSize)
	}
	if c.Data.ValidFrac < 0 || c.Data.ValidFrac >= 1 {
		return fmt.Errorf("config: valid_frac must be in [0, 1), got %v", c.Data.ValidFrac)
	}

	for i, h := range c.Model.Hidden {
		if h <= 0 {
			return fmt.Errorf("config: hidden[%d] must be positive, got %d", i, h)
		}
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return fmt.Errorf("config: dropout must be in [0, 1), got %v", c.Model.Dropout)
	}

	switch c.Optim.Type {
	case "sgd", "adam":
	default:
		return fmt.Errorf("config: unknown optimizer %q (want sgd or adam)", c.Optim.Type)
	}
	if c.Optim.LR <= 0 {
		return fmt.Errorf("config: lr must be positive, got %v", c.Optim.LR)
	}
	if c.Optim.Momentum < 0 || c.Optim.Momentum >= 1 {
		return fmt.Errorf("config: momentum must be in [0, 1), got %v", c.Optim.Momentum)
	}
	switch c.Optim.Scheduler {
	case "", "cosine", "onecycle":
	case "step":
		if c.Optim.StepSize <= 0 {
			return fmt.Errorf("config: step scheduler needs step_size > 0, got %d", c.Optim.StepSize)
		}
		if c.Optim.Gamma <= 0 || c.Optim.Gamma > 1 {
			return fmt.Errorf("config: step scheduler needs gamma in (0, 1], got %v", c.Optim.Gamma)
		}
	default:
		return fmt.Errorf("config: unknown scheduler %q (want step, cosine or onecycle)", c.Optim.Scheduler)
	}

	if c.Train.Epochs <= 0 {
		return fmt.Errorf("config: epochs must be positive, got %d", c.Train.Epochs)
	}
	if c.Train.EarlyStop < 0 {
		return fmt.Errorf("config: early_stop must not be negative, got %d", c.Train.EarlyStop)
	}

	if c.Run.ID == "" {
		c.Run.ID = uuid.NewString()
	}
	if c.Train.Monitor == "" {
		c.Train.Monitor = "valid_loss"
	}
	if c.Train.LogEvery <= 0 {
		c.Train.LogEvery = 50
	}

	watching := c.Train.SaveBest || c.Train.EarlyStop > 0
	if watching && c.Data.ValidFrac == 0 && strings.HasPrefix(c.Train.Monitor, "valid_") {
		return fmt.Errorf("config: monitor %q needs valid_frac > 0", c.Train.Monitor)
	}
	return nil
}
