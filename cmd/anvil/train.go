package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/autodiff"
	"github.com/anvil-ml/anvil/internal/config"
	"github.com/anvil-ml/anvil/internal/data"
	"github.com/anvil-ml/anvil/internal/metrics"
	"github.com/anvil-ml/anvil/internal/nn"
	"github.com/anvil-ml/anvil/internal/optim"
	"github.com/anvil-ml/anvil/internal/tensor"
	"github.com/anvil-ml/anvil/internal/train"
)

var trainFlags struct {
	epochs        int
	batchSize     int
	lr            float64
	device        string
	runID         string
	seed          int64
	checkpointDir string
	stopFile      string
	resume        string
}

// trainCmd runs a full training loop from the config
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model on the configured dataset",
	Long: `Runs the training loop described by the config file: dataset, model
shape, optimizer and callbacks all come from there. Flags override
single fields without editing the file.

The loop stops cleanly on SIGINT/SIGTERM, when the early-stopping
patience runs out, or when the configured stop file appears.

Example:
  anvil train -c runs/blobs.yaml --epochs 20 --lr 0.01`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.IntVar(&trainFlags.epochs, "epochs", 0, "Number of epochs (overrides train.epochs)")
	f.IntVar(&trainFlags.batchSize, "batch-size", 0, "Examples per batch (overrides data.batch_size)")
	f.Float64Var(&trainFlags.lr, "lr", 0, "Learning rate (overrides optim.lr)")
	f.StringVar(&trainFlags.device, "device", "", "Tensor device: cpu or webgpu (overrides run.device)")
	f.StringVar(&trainFlags.runID, "run-id", "", "Run identifier (overrides run.id)")
	f.Int64Var(&trainFlags.seed, "seed", 0, "Data and shuffle seed (overrides run.seed)")
	f.StringVar(&trainFlags.checkpointDir, "checkpoint-dir", "", "Directory for per-epoch checkpoints (overrides train.checkpoint_dir)")
	f.StringVar(&trainFlags.stopFile, "stop-file", "", "Sentinel file that requests a clean stop (overrides train.stop_file)")
	f.StringVar(&trainFlags.resume, "resume", "", "Checkpoint file to restore before training")

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(config.Overrides{
		RunID:         trainFlags.runID,
		Seed:          trainFlags.seed,
		Device:        trainFlags.device,
		Epochs:        trainFlags.epochs,
		BatchSize:     trainFlags.batchSize,
		LR:            trainFlags.lr,
		CheckpointDir: trainFlags.checkpointDir,
		StopFile:      trainFlags.stopFile,
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, stopping after current batch")
		cancel()
	}()

	dev, release, err := newDeviceBackend(cfg.Run.Device)
	if err != nil {
		return err
	}
	defer release()
	logger.Info("run configured",
		zap.String("run_id", cfg.Run.ID),
		zap.String("device", dev.Name()),
		zap.Int64("seed", cfg.Run.Seed),
	)

	return runTraining(ctx, cfg, autodiff.New[tensor.Backend](dev))
}

// runTraining assembles the pipeline and fits. It is generic so the
// tensor type flows from whichever backend the device switch built.
func runTraining[B tensor.Backend](ctx context.Context, cfg *config.Config, backend B) error {
	trainLoader, validLoader, features := buildLoaders(cfg, backend)

	model := buildModel(cfg, features, backend)
	totalSteps := cfg.Train.Epochs * trainLoader.NumBatches()
	opt, sched := buildOptim(cfg, model.Parameters(), totalSteps)
	lossFn := nn.NewCrossEntropyLoss(backend)

	learner := train.NewLearner(model, opt, lossFn.Forward, backend,
		train.WithLogger[B](logger),
		train.WithScheduler[B](sched),
		train.WithCallbacks[B](buildCallbacks[B](cfg)...),
	)

	if trainFlags.resume != "" {
		meta, err := learner.LoadCheckpoint(trainFlags.resume)
		if err != nil {
			return fmt.Errorf("resume from %s: %w", trainFlags.resume, err)
		}
		logger.Info("resumed from checkpoint",
			zap.String("path", trainFlags.resume),
			zap.Int("epoch", meta.Epoch),
			zap.Int64("step", meta.Step),
		)
	}

	if cfg.Train.CheckpointDir != "" {
		effective := filepath.Join(cfg.Train.CheckpointDir, "config.yaml")
		if err := cfg.Save(effective); err != nil {
			return err
		}
		logger.Debug("effective config written", zap.String("path", effective))
	}

	start := time.Now()
	if err := learner.Fit(ctx, cfg.Train.Epochs, trainLoader, validLoader); err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	printSummary(learner, cfg, time.Since(start))
	return nil
}

// buildLoaders generates the dataset, splits off validation and wraps
// both halves in loaders. The validation loader is nil when the split
// fraction leaves it empty.
func buildLoaders[B tensor.Backend](cfg *config.Config, backend B) (trainLoader, validLoader *data.Loader[B], features int) {
	dataset := data.NewBlobs(data.BlobsConfig{
		Samples:  cfg.Data.Samples,
		Classes:  cfg.Data.Classes,
		Features: cfg.Data.Features,
		Spread:   cfg.Data.Spread,
		Seed:     cfg.Run.Seed,
	})
	trainSet, validSet := dataset.Split(cfg.Data.ValidFrac)

	trainLoader = data.NewLoader(trainSet, backend, data.LoaderConfig{
		BatchSize: cfg.Data.BatchSize,
		Shuffle:   cfg.Data.Shuffle,
		Workers:   cfg.Data.Workers,
		Seed:      cfg.Run.Seed,
	})
	if validSet.Len() > 0 {
		validLoader = data.NewLoader(validSet, backend, data.LoaderConfig{
			BatchSize: cfg.Data.BatchSize,
			Workers:   cfg.Data.Workers,
		})
	}
	return trainLoader, validLoader, dataset.Features()
}

// buildModel stacks Linear/ReLU blocks per the config, with dropout
// after each activation when configured, and a linear head sized to the
// class count.
func buildModel[B tensor.Backend](cfg *config.Config, features int, backend B) *nn.Sequential[B] {
	var layers []nn.Module[B]
	in := features
	for _, h := range cfg.Model.Hidden {
		layers = append(layers, nn.NewLinear(in, h, backend), nn.NewReLU[B]())
		if cfg.Model.Dropout > 0 {
			layers = append(layers, nn.NewDropout[B](float32(cfg.Model.Dropout)))
		}
		in = h
	}
	layers = append(layers, nn.NewLinear(in, cfg.Data.Classes, backend))
	return nn.NewSequential(layers...)
}

// buildOptim constructs the configured optimizer and scheduler.
// Schedulers need a positive step horizon; callers without one (the LR
// sweep) pass totalSteps <= 0 and get a nil scheduler regardless of the
// config.
func buildOptim[B tensor.Backend](cfg *config.Config, params []*nn.Parameter[B], totalSteps int) (optim.Optimizer, optim.Scheduler) {
	var opt optim.Optimizer
	switch cfg.Optim.Type {
	case "adam":
		opt = optim.NewAdam(params, optim.AdamConfig{LR: float32(cfg.Optim.LR)})
	default:
		opt = optim.NewSGD(params, optim.SGDConfig{
			LR:          float32(cfg.Optim.LR),
			Momentum:    float32(cfg.Optim.Momentum),
			WeightDecay: float32(cfg.Optim.WeightDecay),
		})
	}

	var sched optim.Scheduler
	if totalSteps <= 0 {
		return opt, nil
	}
	switch cfg.Optim.Scheduler {
	case "step":
		sched = optim.NewStepLR(opt, cfg.Optim.StepSize, float32(cfg.Optim.Gamma))
	case "cosine":
		sched = optim.NewCosineAnnealing(opt, totalSteps, 0)
	case "onecycle":
		sched = optim.NewOneCycle(opt, optim.OneCycleConfig{
			MaxLR:      float32(cfg.Optim.LR),
			TotalSteps: totalSteps,
		})
	}
	return opt, sched
}

// buildCallbacks assembles the stock callbacks the config asks for.
// Monitors not ending in "loss" are treated as maximized.
func buildCallbacks[B tensor.Backend](cfg *config.Config) []train.Callback {
	cbs := []train.Callback{
		train.NewLogger[B](logger, cfg.Train.LogEvery),
		train.NewMetric[B](metrics.NewAccuracy()),
	}

	monitor := cfg.Train.Monitor
	maximize := !strings.HasSuffix(monitor, "loss")

	if cfg.Train.CheckpointDir != "" {
		cbs = append(cbs, train.NewCheckpointer[B](cfg.Train.CheckpointDir, cfg.Run.ID))
	}
	if cfg.Train.SaveBest {
		best := train.SaveBestConfig{Monitor: monitor}
		if maximize {
			best.Mode = "max"
		}
		if cfg.Train.CheckpointDir != "" {
			best.Path = filepath.Join(cfg.Train.CheckpointDir, "best.anvl")
		}
		cbs = append(cbs, train.NewSaveBest[B](best))
	}
	if cfg.Train.EarlyStop > 0 {
		es := train.NewEarlyStopper[B](monitor, cfg.Train.EarlyStop)
		if maximize {
			es.Maximize()
		}
		cbs = append(cbs, es)
	}
	if cfg.Train.StopFile != "" {
		cbs = append(cbs, train.NewStopFile[B](cfg.Train.StopFile))
	}
	return cbs
}

func printSummary[B tensor.Backend](l *train.Learner[B], cfg *config.Config, elapsed time.Duration) {
	fmt.Printf("run %s finished in %s (%d steps)\n", cfg.Run.ID, elapsed.Round(time.Millisecond), l.Step)
	h := l.History()
	for _, series := range []string{"train_loss", "valid_loss", "valid_accuracy"} {
		if p, ok := h.Last(series); ok {
			fmt.Printf("  %-15s %.4f\n", series, p.Value)
		}
	}
	if cfg.Train.CheckpointDir != "" {
		fmt.Printf("  checkpoints in %s\n", cfg.Train.CheckpointDir)
	}
}
