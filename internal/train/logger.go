package train

import (
	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// Logger reports training progress through zap: one line every N train
// batches, one per epoch, and fit boundaries.
type Logger[B tensor.Backend] struct {
	log   *zap.Logger
	every int
}

// NewLogger builds a progress logger. every is the train-batch cadence;
// zero or negative disables per-batch lines.
func NewLogger[B tensor.Backend](log *zap.Logger, every int) *Logger[B] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger[B]{log: log, every: every}
}

func (c *Logger[B]) Name() string { return "logger" }

func (c *Logger[B]) OnBeforeFit(l *Learner[B]) error {
	c.log.Info("fit start",
		zap.Int("epochs", l.TotalEpochs),
		zap.Int64("step", l.Step),
		zap.Float32("lr", l.LR()),
	)
	return nil
}

func (c *Logger[B]) OnAfterBatch(l *Learner[B]) error {
	if !l.Training || c.every <= 0 || (l.Batch+1)%c.every != 0 {
		return nil
	}
	fields := []zap.Field{
		zap.Int("epoch", l.Epoch),
		zap.Int("batch", l.Batch),
		zap.Int64("step", l.Step),
		zap.Float32("lr", l.LR()),
	}
	if l.Loss != nil && l.Loss.NumElements() == 1 {
		fields = append(fields, zap.Float32("loss", l.Loss.Item()))
	}
	c.log.Info("train batch", fields...)
	return nil
}

func (c *Logger[B]) OnAfterEpoch(l *Learner[B]) error {
	fields := []zap.Field{
		zap.Int("epoch", l.Epoch),
		zap.Int64("step", l.Step),
	}
	if p, ok := l.History().Last("train_loss"); ok {
		fields = append(fields, zap.Float64("train_loss", p.Value))
	}
	if p, ok := l.History().Last("valid_loss"); ok {
		fields = append(fields, zap.Float64("valid_loss", p.Value))
	}
	c.log.Info("epoch done", fields...)
	return nil
}

func (c *Logger[B]) OnAfterFit(l *Learner[B]) error {
	c.log.Info("fit done", zap.Int64("step", l.Step))
	return nil
}
