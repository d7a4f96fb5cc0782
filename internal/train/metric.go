package train

import (
	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/metrics"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// MetricCallback plugs a metrics.Metric into the loop. In the eval
// phase it accumulates over the whole pass and logs one value per epoch
// under "valid_<name>". In the train phase it computes the metric on
// the current batch every N optimizer steps, logged under
// "train_<name>". The default is eval only.
type MetricCallback[B tensor.Backend] struct {
	metric     metrics.Metric
	train      bool
	eval       bool
	everySteps int
	evalSeen   bool
}

// MetricOption selects the phases a metric runs in.
type MetricOption func(*metricPhases)

type metricPhases struct {
	train      bool
	eval       bool
	everySteps int
}

// OnTrain enables the train phase: the metric is computed on the
// current batch once every everySteps optimizer steps (minimum 1).
func OnTrain(everySteps int) MetricOption {
	return func(p *metricPhases) {
		p.train = true
		if everySteps < 1 {
			everySteps = 1
		}
		p.everySteps = everySteps
	}
}

// OnEval enables the eval phase (the default when no options are
// given): the metric aggregates over each eval pass.
func OnEval() MetricOption {
	return func(p *metricPhases) { p.eval = true }
}

// NewMetric wraps a metric as a callback.
func NewMetric[B tensor.Backend](m metrics.Metric, opts ...MetricOption) *MetricCallback[B] {
	var phases metricPhases
	for _, opt := range opts {
		opt(&phases)
	}
	if !phases.train && !phases.eval {
		phases.eval = true
	}
	return &MetricCallback[B]{
		metric:     m,
		train:      phases.train,
		eval:       phases.eval,
		everySteps: phases.everySteps,
	}
}

func (c *MetricCallback[B]) Name() string { return "metric_" + c.metric.Name() }

// Metric returns the wrapped metric, e.g. to Compute after a standalone
// Validate pass.
func (c *MetricCallback[B]) Metric() metrics.Metric { return c.metric }

func (c *MetricCallback[B]) OnAfterBatch(l *Learner[B]) error {
	if l.Pred == nil || l.Y == nil {
		return nil
	}
	if l.Training {
		if !c.train || l.Step%int64(c.everySteps) != 0 {
			return nil
		}
		c.metric.Reset()
		c.metric.Update(l.Pred.Raw(), l.Y.Raw())
		l.History().Log("train_"+c.metric.Name(), l.Step, c.metric.Compute())
		return nil
	}
	if !c.eval {
		return nil
	}
	if l.Batch == 0 {
		c.metric.Reset()
		c.evalSeen = false
	}
	c.metric.Update(l.Pred.Raw(), l.Y.Raw())
	c.evalSeen = true
	return nil
}

func (c *MetricCallback[B]) OnAfterEpoch(l *Learner[B]) error {
	if !c.eval || !c.evalSeen {
		return nil
	}
	value := c.metric.Compute()
	l.History().Log("valid_"+c.metric.Name(), l.Step, value)
	l.Logger().Debug("eval metric",
		zap.String("metric", c.metric.Name()),
		zap.Int("epoch", l.Epoch),
		zap.Float64("value", value),
	)
	c.evalSeen = false
	return nil
}
