package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/config"
)

// sweepConfig is a Validate()-clean run small enough for a unit test,
// with the scheduler chosen by the caller.
func sweepConfig(scheduler string) *config.Config {
	cfg := config.Default()
	cfg.Data.Samples = 64
	cfg.Data.Features = 4
	cfg.Data.Classes = 2
	cfg.Data.BatchSize = 16
	cfg.Data.ValidFrac = 0
	cfg.Data.Workers = 1
	cfg.Model.Hidden = []int{8}
	cfg.Model.Dropout = 0
	cfg.Optim.Scheduler = scheduler
	cfg.Optim.StepSize = 10
	cfg.Optim.Gamma = 0.5
	return cfg
}

// Step-counted schedulers reject a non-positive horizon, and the LR
// sweep has none; buildOptim must skip the scheduler there instead of
// letting the construction panic.
func TestBuildOptim_NilSchedulerWithoutStepHorizon(t *testing.T) {
	backend := autodiff.New(cpu.New())
	for _, scheduler := range []string{"onecycle", "cosine", "step"} {
		cfg := sweepConfig(scheduler)
		require.NoError(t, cfg.Validate())
		model := buildModel(cfg, cfg.Data.Features, backend)

		opt, sched := buildOptim(cfg, model.Parameters(), 0)
		require.NotNil(t, opt, "optimizer for scheduler %q", scheduler)
		assert.Nil(t, sched, "scheduler %q must be skipped without a step horizon", scheduler)

		_, sched = buildOptim(cfg, model.Parameters(), 100)
		assert.NotNil(t, sched, "scheduler %q expected for a real run", scheduler)
	}
}

func TestRunSweep_SchedulerBearingConfig(t *testing.T) {
	prevLogger, prevFlags := logger, lrfindFlags
	defer func() { logger, lrfindFlags = prevLogger, prevFlags }()
	logger = zap.NewNop()
	lrfindFlags.start = 1e-5
	lrfindFlags.end = 1
	lrfindFlags.steps = 8

	cfg := sweepConfig("onecycle")
	require.NoError(t, cfg.Validate())

	backend := autodiff.New(cpu.New())
	require.NoError(t, runSweep(context.Background(), cfg, backend))
}
