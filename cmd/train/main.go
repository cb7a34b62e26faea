// brainbuilder-train: trains a feedforward network and saves it as JSON.
//
// Usage:
//
//	brainbuilder-train --config=train.yaml --epochs=5000 --output=model.json
//
// Without a config file the XOR demo is trained.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"github.com/domonkosgyomorey/BrainBuilder/dataset"
	"github.com/domonkosgyomorey/BrainBuilder/nn"
	"github.com/domonkosgyomorey/BrainBuilder/nn/layers"
	"github.com/domonkosgyomorey/BrainBuilder/utils"
)

var (
	configFile   = flag.String("config", "", "YAML training config (defaults to the XOR demo)")
	architecture = flag.String("arch", "", "Layer sizes, e.g. \"2 4 1\"")
	optimizer    = flag.String("optimizer", "", "Training algorithm: None or SGD")
	epochs       = flag.Int("epochs", 0, "Number of training epochs")
	batchSize    = flag.Int("batch-size", 0, "Mini-batch size for SGD")
	learningRate = flag.Float64("lr", 0, "Base learning rate")
	seed         = flag.Uint64("seed", 0, "Seed for weight init and shuffling")
	workers      = flag.Int("workers", 0, "SGD worker goroutines (0 = one per CPU)")
	logEvery     = flag.Int("log-every", 0, "Log every N epochs")
	dataFile     = flag.String("data", "", "CSV dataset: inputs then targets per row")
	normalize    = flag.Bool("normalize", false, "Standardize input features")
	outputFile   = flag.String("output", "", "Output model file (JSON)")
	predict      = flag.Bool("predict", true, "Print predictions for the training set")
	logLevel     = flag.String("log-level", "info", "Log level")
	logJSON      = flag.Bool("log-json", false, "Log as JSON")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.WithError(err).Fatal("invalid log level")
	}
	logger.SetLevel(level)
	if *logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	cfg := utils.DefaultConfig()
	if *configFile != "" {
		if cfg, err = utils.LoadConfig(*configFile); err != nil {
			logger.WithError(err).Fatal("failed to load config")
		}
	}
	cfg.ApplyOverrides(utils.Overrides{
		Architecture: *architecture,
		Optimizer:    *optimizer,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		BaseRate:     *learningRate,
		Seed:         *seed,
		Workers:      *workers,
		LogEvery:     *logEvery,
		Data:         *dataFile,
		Output:       *outputFile,
	})
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("training failed")
	}
}

func run(ctx context.Context, cfg *utils.Config, logger *logrus.Logger) error {
	var timing utils.TimingStats
	start := time.Now()

	arch, err := utils.ParseArchitecture(cfg.Architecture)
	if err != nil {
		return err
	}
	data, err := loadData(cfg, arch)
	if err != nil {
		return err
	}
	timing.DataLoadTime = time.Since(start)

	initStart := time.Now()
	network, err := buildNetwork(cfg, arch, logger)
	if err != nil {
		return err
	}
	opt, err := nn.ParseOptimizer(cfg.Optimizer)
	if err != nil {
		return err
	}
	timing.ModelInitTime = time.Since(initStart)

	logger.WithFields(logrus.Fields{
		"architecture": arch,
		"samples":      len(data),
		"optimizer":    opt,
		"loss":         network.Loss().Type(),
		"strategy":     network.Handler().Strategy(),
		"epochs":       cfg.Epochs,
	}).Info("starting training")

	history, err := network.Train(ctx, opt, cfg.Epochs, data, cfg.BatchSize)
	switch {
	case errors.Is(err, context.Canceled):
		logger.WithField("epochs_done", len(history)).Warn("training interrupted")
	case err != nil:
		return err
	}

	durations := make([]time.Duration, len(history))
	for i, s := range history {
		durations[i] = s.Duration
	}
	timing.SummarizeEpochs(durations)
	timing.TotalTime = time.Since(start)
	utils.PrintTimingStats(logger, &timing)

	if *predict {
		if err := report(network, data); err != nil {
			return err
		}
	}

	if cfg.Output != "" {
		if err := network.Save(cfg.Output); err != nil {
			return err
		}
		logger.WithField("path", cfg.Output).Info("model saved")
	}
	return nil
}

func loadData(cfg *utils.Config, arch []int) (nn.Dataset, error) {
	in, out := arch[0], arch[len(arch)-1]
	var data nn.Dataset
	if cfg.Data == "" {
		if in != 2 || out != 1 {
			return nil, fmt.Errorf("the XOR demo needs a 2-input 1-output architecture, got %v", arch)
		}
		data = dataset.XOR()
	} else {
		var err error
		if data, err = dataset.LoadCSV(cfg.Data, in, out); err != nil {
			return nil, err
		}
	}
	if *normalize {
		return dataset.Normalize(data, dataset.CalculateMean(data), dataset.CalculateStdDev(data))
	}
	return data, nil
}

// buildNetwork stacks Dense layers for every pair of sizes in arch. Hidden
// layers get an optional BatchNormalization and the hidden activation, the
// last one gets the output activation.
func buildNetwork(cfg *utils.Config, arch []int, logger *logrus.Logger) (*nn.Network, error) {
	hidden, err := layers.ParseFunction(cfg.Activation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nn.ErrConfig, err)
	}
	output, err := layers.ParseFunction(cfg.OutputActivation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nn.ErrConfig, err)
	}

	var stack []layers.Layer
	for i := 0; i+1 < len(arch); i++ {
		stack = append(stack, layers.NewDense(arch[i], arch[i+1], rand.NewSource(cfg.Seed+uint64(i))))
		fn := output
		if i+2 < len(arch) {
			fn = hidden
			if cfg.BatchNorm {
				stack = append(stack, layers.NewBatchNormalization(arch[i+1]))
			}
		}
		act, err := layers.NewActivation(fn)
		if err != nil {
			return nil, err
		}
		stack = append(stack, act)
	}

	lossType, err := nn.ParseLossType(cfg.Loss)
	if err != nil {
		return nil, err
	}
	strategy, err := nn.ParseStrategy(cfg.LearningRate.Strategy)
	if err != nil {
		return nil, err
	}
	rate := cfg.LearningRate
	handler, err := nn.NewLearningRateHandler(strategy, rate.Base,
		nn.WithMomentum(rate.Momentum),
		nn.WithDecayRate(rate.DecayRate),
		nn.WithDecayStep(rate.DecayStep),
		nn.WithTotalStep(rate.TotalStep),
	)
	if err != nil {
		return nil, err
	}

	opts := []nn.Option{
		nn.WithLogger(logger),
		nn.WithSeed(cfg.Seed),
		nn.WithLogEvery(cfg.LogEvery),
	}
	if cfg.Workers > 0 {
		opts = append(opts, nn.WithWorkers(cfg.Workers))
	}
	return nn.NewNetwork(stack, lossType, handler, opts...)
}

func report(network *nn.Network, data nn.Dataset) error {
	for _, s := range data {
		out, err := network.Feedforward(s.Input)
		if err != nil {
			return err
		}
		fmt.Printf("input=%v target=%v prediction=%.4f\n", s.Input, s.Target, out)
	}
	return nil
}
