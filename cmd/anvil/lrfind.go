package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/config"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/tensor"
	"github.com/anvil-ml/anvil/internal/train"
)

var lrfindFlags struct {
	start float64
	end   float64
	steps int
}

// lrfindCmd sweeps the learning rate before a real run
var lrfindCmd = &cobra.Command{
	Use:   "lrfind",
	Short: "Sweep learning rates and suggest one",
	Long: `Runs a short exponential learning-rate sweep on the configured
dataset and model: the rate grows from --start to --end over --steps
batches while the smoothed loss is recorded, and the sweep stops early
once the loss blows up. The suggestion is the rate at the steepest
descent.

Model parameters are restored afterwards, so the sweep leaves no trace
beyond the printed numbers.`,
	RunE: runLRFind,
}

func init() {
	f := lrfindCmd.Flags()
	f.Float64Var(&lrfindFlags.start, "start", 1e-7, "Lowest rate of the sweep")
	f.Float64Var(&lrfindFlags.end, "end", 10, "Highest rate of the sweep")
	f.IntVar(&lrfindFlags.steps, "steps", 100, "Batches the sweep runs for")

	rootCmd.AddCommand(lrfindCmd)
}

func runLRFind(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, aborting sweep")
		cancel()
	}()

	dev, release, err := newDeviceBackend(cfg.Run.Device)
	if err != nil {
		return err
	}
	defer release()

	return runSweep(ctx, cfg, autodiff.New[tensor.Backend](dev))
}

func runSweep[B tensor.Backend](ctx context.Context, cfg *config.Config, backend B) error {
	trainLoader, _, features := buildLoaders(cfg, backend)

	model := buildModel(cfg, features, backend)
	opt, _ := buildOptim(cfg, model.Parameters(), 0)
	lossFn := nn.NewCrossEntropyLoss(backend)

	learner := train.NewLearner(model, opt, lossFn.Forward, backend,
		train.WithLogger[B](logger),
	)

	finder, err := train.FindLR(ctx, learner, trainLoader, train.LRFinderConfig{
		Start: lrfindFlags.start,
		End:   lrfindFlags.end,
		Steps: lrfindFlags.steps,
	})
	if err != nil {
		return fmt.Errorf("lr sweep: %w", err)
	}

	lrs, losses := finder.Results()
	if len(lrs) == 0 {
		return fmt.Errorf("lr sweep recorded no points")
	}
	fmt.Printf("swept %d rates in [%.3e, %.3e]\n", len(lrs), lrs[0], lrs[len(lrs)-1])

	bestIdx := 0
	for i, v := range losses {
		if v < losses[bestIdx] {
			bestIdx = i
		}
	}
	fmt.Printf("lowest smoothed loss %.4f at lr %.3e\n", losses[bestIdx], lrs[bestIdx])

	if lr, ok := finder.Suggest(); ok {
		fmt.Printf("suggested lr: %.3e\n", lr)
	} else {
		fmt.Println("no clear suggestion; widen the range or add steps")
	}
	return nil
}
