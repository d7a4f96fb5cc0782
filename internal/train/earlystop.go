package train

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// EarlyStopper cancels the fit when a monitored history series has not
// improved for patience consecutive epochs.
type EarlyStopper[B tensor.Backend] struct {
	monitor  string
	mode     string
	patience int
	best     float64
	seen     bool
	bad      int
}

// NewEarlyStopper watches a series for "min" improvement with the given
// patience. Patience 2 means the fit is cancelled after the second
// epoch in a row without improvement. An empty monitor defaults to
// "valid_loss".
func NewEarlyStopper[B tensor.Backend](monitor string, patience int) *EarlyStopper[B] {
	if monitor == "" {
		monitor = "valid_loss"
	}
	if patience < 1 {
		patience = 1
	}
	return &EarlyStopper[B]{monitor: monitor, mode: "min", patience: patience}
}

// Maximize flips the improvement direction, for accuracy-like series.
func (c *EarlyStopper[B]) Maximize() *EarlyStopper[B] {
	c.mode = "max"
	return c
}

func (c *EarlyStopper[B]) Name() string { return "early_stopper" }

func (c *EarlyStopper[B]) OnBeforeFit(_ *Learner[B]) error {
	c.seen = false
	c.bad = 0
	return nil
}

func (c *EarlyStopper[B]) OnAfterEpoch(l *Learner[B]) error {
	p, ok := l.History().Last(c.monitor)
	if !ok {
		return fmt.Errorf("train: early_stopper: history has no series %q", c.monitor)
	}
	improved := !c.seen || (c.mode == "min" && p.Value < c.best) || (c.mode == "max" && p.Value > c.best)
	if improved {
		c.best = p.Value
		c.seen = true
		c.bad = 0
		return nil
	}
	c.bad++
	if c.bad >= c.patience {
		l.Logger().Info("early stop",
			zap.String("monitor", c.monitor),
			zap.Float64("best", c.best),
			zap.Int("patience", c.patience),
			zap.Int("epoch", l.Epoch),
		)
		return ErrCancelFit
	}
	return nil
}
