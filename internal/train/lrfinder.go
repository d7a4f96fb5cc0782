package train

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// LRFinderConfig shapes the learning-rate sweep.
type LRFinderConfig struct {
	// Start and End bound the exponential sweep. Defaults 1e-7 and 10.
	Start float64
	End   float64
	// Steps is how many batches the sweep runs for. Default 100.
	Steps int
	// MaxIncrease cancels the sweep once the smoothed loss exceeds
	// MaxIncrease times the best seen. Default 4.
	MaxIncrease float64
	// Beta is the exponential smoothing factor for the recorded loss.
	// Default 0.98.
	Beta float64
}

func (cfg LRFinderConfig) withDefaults() LRFinderConfig {
	if cfg.Start <= 0 {
		cfg.Start = 1e-7
	}
	if cfg.End <= 0 {
		cfg.End = 10
	}
	if cfg.Steps < 2 {
		cfg.Steps = 100
	}
	if cfg.MaxIncrease <= 0 {
		cfg.MaxIncrease = 4
	}
	if cfg.Beta <= 0 || cfg.Beta >= 1 {
		cfg.Beta = 0.98
	}
	return cfg
}

// LRFinder sweeps the learning rate exponentially from Start to End
// over Steps training batches, recording a smoothed loss at each step.
// The sweep cancels itself once the loss blows up, and the learner is
// restored to its pre-sweep state when the fit ends, so running a
// finder never perturbs training.
type LRFinder[B tensor.Backend] struct {
	cfg  LRFinderConfig
	snap *Snapshot

	n      int
	avg    float64
	best   float64
	lrs    []float64
	losses []float64
}

// NewLRFinder builds the callback. Zero-value config sweeps 1e-7 to 10
// over 100 steps.
func NewLRFinder[B tensor.Backend](cfg LRFinderConfig) *LRFinder[B] {
	return &LRFinder[B]{cfg: cfg.withDefaults()}
}

func (c *LRFinder[B]) Name() string { return "lr_finder" }

func (c *LRFinder[B]) OnBeforeFit(l *Learner[B]) error {
	snap, err := l.Snapshot()
	if err != nil {
		return fmt.Errorf("train: lr_finder: %w", err)
	}
	c.snap = snap
	c.n = 0
	c.avg = 0
	c.best = 0
	c.lrs = c.lrs[:0]
	c.losses = c.losses[:0]
	l.SetLR(float32(c.cfg.Start))
	return nil
}

func (c *LRFinder[B]) OnBeforeBatch(l *Learner[B]) error {
	if !l.Training {
		return nil
	}
	pos := float64(c.n) / float64(c.cfg.Steps-1)
	lr := c.cfg.Start * math.Pow(c.cfg.End/c.cfg.Start, pos)
	l.SetLR(float32(lr))
	return nil
}

func (c *LRFinder[B]) OnAfterLoss(l *Learner[B]) error {
	if !l.Training {
		return nil
	}
	if l.Loss == nil || l.Loss.NumElements() != 1 {
		return fmt.Errorf("train: lr_finder: loss must be a scalar")
	}
	loss := float64(l.Loss.Item())

	c.avg = c.cfg.Beta*c.avg + (1-c.cfg.Beta)*loss
	smoothed := c.avg / (1 - math.Pow(c.cfg.Beta, float64(c.n+1)))

	c.lrs = append(c.lrs, float64(l.LR()))
	c.losses = append(c.losses, smoothed)

	if c.n > 0 && smoothed > c.cfg.MaxIncrease*c.best {
		l.Logger().Info("lr sweep stopped: loss diverged",
			zap.Float64("lr", float64(l.LR())),
			zap.Float64("smoothed", smoothed),
			zap.Float64("best", c.best),
		)
		return ErrCancelFit
	}
	if c.n == 0 || smoothed < c.best {
		c.best = smoothed
	}

	c.n++
	if c.n >= c.cfg.Steps {
		return ErrCancelFit
	}
	return nil
}

func (c *LRFinder[B]) OnAfterFit(l *Learner[B]) error {
	if c.snap == nil {
		return nil
	}
	if err := l.Restore(c.snap); err != nil {
		return fmt.Errorf("train: lr_finder: restore: %w", err)
	}
	c.snap = nil
	return nil
}

// Results returns the recorded sweep as parallel slices of learning
// rate and smoothed loss.
func (c *LRFinder[B]) Results() (lrs, losses []float64) {
	lrs = append([]float64(nil), c.lrs...)
	losses = append([]float64(nil), c.losses...)
	return lrs, losses
}

// Suggest picks the learning rate at the point of steepest loss
// descent. It reports false when the sweep recorded too few points to
// say anything.
func (c *LRFinder[B]) Suggest() (float64, bool) {
	if len(c.losses) < 3 {
		return 0, false
	}
	bestIdx := -1
	bestSlope := math.Inf(1)
	for i := 1; i < len(c.losses)-1; i++ {
		slope := c.losses[i+1] - c.losses[i-1]
		if math.IsNaN(slope) || math.IsInf(slope, 0) {
			continue
		}
		if slope < bestSlope {
			bestSlope = slope
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestSlope >= 0 {
		return 0, false
	}
	return c.lrs[bestIdx], true
}

// FindLR runs a learning-rate sweep on the learner and returns the
// finished finder. The learner comes back in its pre-sweep state.
func FindLR[B tensor.Backend](ctx context.Context, l *Learner[B], loader *data.Loader[B], cfg LRFinderConfig) (*LRFinder[B], error) {
	cfg = cfg.withDefaults()
	finder := NewLRFinder[B](cfg)
	l.AddCallback(finder)
	defer l.RemoveCallback(finder)

	perEpoch := loader.NumBatches()
	if perEpoch < 1 {
		return nil, fmt.Errorf("train: lr_finder: loader yields no batches")
	}
	epochs := (cfg.Steps + perEpoch - 1) / perEpoch

	if err := l.Fit(ctx, epochs, loader, nil); err != nil {
		return nil, err
	}
	return finder, nil
}
