package train

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/checkpoint"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Checkpointer writes an ANVL snapshot of model and optimizer state at
// the end of every epoch, named epoch_NNN.anvl under its directory.
type Checkpointer[B tensor.Backend] struct {
	dir   string
	runID string
}

// NewCheckpointer builds a per-epoch checkpointer. An empty runID gets
// a fresh UUID; the directory is created on the first save.
func NewCheckpointer[B tensor.Backend](dir, runID string) *Checkpointer[B] {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Checkpointer[B]{dir: dir, runID: runID}
}

func (c *Checkpointer[B]) Name() string { return "checkpointer" }

// RunID returns the run identifier stamped into each checkpoint's meta.
func (c *Checkpointer[B]) RunID() string { return c.runID }

// OnBeforeFit fails fast when the model cannot be checkpointed.
func (c *Checkpointer[B]) OnBeforeFit(l *Learner[B]) error {
	if _, ok := l.Model().(nn.Stateful); !ok {
		return fmt.Errorf("train: checkpointer: model %T does not expose a state dict", l.Model())
	}
	return nil
}

func (c *Checkpointer[B]) OnAfterEpoch(l *Learner[B]) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("train: checkpointer: %w", err)
	}
	meta := checkpoint.Meta{
		RunID: c.runID,
		Epoch: l.Epoch,
		Loss:  lastLoss(l.History()),
	}
	path := filepath.Join(c.dir, fmt.Sprintf("epoch_%03d.anvl", l.Epoch))
	if err := l.SaveCheckpoint(path, meta); err != nil {
		return err
	}
	l.Logger().Info("checkpoint saved",
		zap.String("path", path),
		zap.Int("epoch", l.Epoch),
		zap.Int64("step", l.Step),
	)
	return nil
}

// lastLoss picks the loss recorded for checkpoint meta: validation when
// present, training otherwise.
func lastLoss(h *History) float64 {
	if p, ok := h.Last("valid_loss"); ok {
		return p.Value
	}
	if p, ok := h.Last("train_loss"); ok {
		return p.Value
	}
	return 0
}

// SaveBestConfig configures a SaveBest callback.
type SaveBestConfig struct {
	// Monitor is the history series watched for improvement.
	// Defaults to "valid_loss".
	Monitor string
	// Mode is "min" (default) or "max".
	Mode string
	// Path, when set, also writes the best state to an ANVL file each
	// time it improves.
	Path string
	// KeepEnd leaves the final (not best) state in place after the
	// fit. The default restores the best snapshot at after_fit.
	KeepEnd bool
}

// SaveBest tracks a history series each epoch and snapshots the learner
// whenever the watched value improves. Unless configured otherwise the
// best snapshot is restored when the fit ends.
type SaveBest[B tensor.Backend] struct {
	cfg  SaveBestConfig
	best float64
	snap *Snapshot
}

// NewSaveBest builds the callback. Zero-value config watches
// "valid_loss" for a minimum and restores the best state at fit end.
func NewSaveBest[B tensor.Backend](cfg SaveBestConfig) *SaveBest[B] {
	if cfg.Monitor == "" {
		cfg.Monitor = "valid_loss"
	}
	if cfg.Mode == "" {
		cfg.Mode = "min"
	}
	return &SaveBest[B]{cfg: cfg}
}

func (c *SaveBest[B]) Name() string { return "save_best" }

// Best returns the best observed value and whether one exists yet.
func (c *SaveBest[B]) Best() (float64, bool) { return c.best, c.snap != nil }

func (c *SaveBest[B]) OnBeforeFit(l *Learner[B]) error {
	if c.cfg.Mode != "min" && c.cfg.Mode != "max" {
		return fmt.Errorf("train: save_best: mode must be \"min\" or \"max\", got %q", c.cfg.Mode)
	}
	c.snap = nil
	c.best = 0
	return nil
}

func (c *SaveBest[B]) OnAfterEpoch(l *Learner[B]) error {
	p, ok := l.History().Last(c.cfg.Monitor)
	if !ok {
		return fmt.Errorf("train: save_best: history has no series %q (log it or change Monitor)", c.cfg.Monitor)
	}
	if c.snap != nil && !c.improved(p.Value) {
		return nil
	}

	snap, err := l.Snapshot()
	if err != nil {
		return fmt.Errorf("train: save_best: %w", err)
	}
	c.snap = snap
	c.best = p.Value
	l.Logger().Info("new best",
		zap.String("monitor", c.cfg.Monitor),
		zap.Float64("value", p.Value),
		zap.Int("epoch", l.Epoch),
	)

	if c.cfg.Path != "" {
		meta := checkpoint.Meta{Epoch: l.Epoch, Loss: p.Value}
		if err := l.SaveCheckpoint(c.cfg.Path, meta); err != nil {
			return err
		}
	}
	return nil
}

func (c *SaveBest[B]) OnAfterFit(l *Learner[B]) error {
	if c.cfg.KeepEnd || c.snap == nil {
		return nil
	}
	if err := l.Restore(c.snap); err != nil {
		return fmt.Errorf("train: save_best: restore: %w", err)
	}
	l.Logger().Info("restored best state",
		zap.String("monitor", c.cfg.Monitor),
		zap.Float64("value", c.best),
	)
	return nil
}

func (c *SaveBest[B]) improved(v float64) bool {
	if c.cfg.Mode == "max" {
		return v > c.best
	}
	return v < c.best
}

