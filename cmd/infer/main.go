// brainbuilder-infer: runs a saved model over a CSV file of inputs.
//
// Usage:
//
//	brainbuilder-infer --model=model.json --input=samples.csv --inputs=2
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/domonkosgyomorey/BrainBuilder/dataset"
	"github.com/domonkosgyomorey/BrainBuilder/nn"
	"github.com/domonkosgyomorey/BrainBuilder/utils"
)

var (
	modelFile = flag.String("model", "", "Model JSON file written by brainbuilder-train")
	inputFile = flag.String("input", "", "CSV file, one sample per row (stdin if empty)")
	inputs    = flag.Int("inputs", 0, "Number of input columns; extra columns are printed as targets")
	loss      = flag.String("loss", "", "Loss function (defaults to the one stored in the model)")
	logLevel  = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.WithError(err).Fatal("invalid log level")
	}
	logger.SetLevel(level)

	if *modelFile == "" {
		logger.Fatal("no model file given")
	}
	network, err := loadModel(*modelFile, *loss, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to load model")
	}
	logger.WithFields(logrus.Fields{
		"path":   *modelFile,
		"layers": len(network.Layers()),
	}).Info("model loaded")

	in := io.Reader(os.Stdin)
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			logger.WithError(err).Fatal("failed to open input")
		}
		defer f.Close()
		in = f
	}
	if err := predict(network, in, *inputs, os.Stdout); err != nil {
		logger.WithError(err).Fatal("inference failed")
	}
}

func loadModel(path, lossName string, logger *logrus.Logger) (*nn.Network, error) {
	if lossName == "" {
		var m nn.Model
		if err := utils.LoadJSON(path, &m); err != nil {
			return nil, err
		}
		lossName = m.LossFunction
	}
	lossType, err := nn.ParseLossType(lossName)
	if err != nil {
		return nil, err
	}
	// inference never steps the handler; any valid schedule will do
	handler, err := nn.NewLearningRateHandler(nn.NoDecay, 0)
	if err != nil {
		return nil, err
	}
	return nn.Load(path, lossType, handler, nn.WithLogger(logger))
}

func predict(network *nn.Network, r io.Reader, inputNum int, w io.Writer) error {
	rows, err := dataset.ReadRows(r)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	for i, values := range rows {
		n := inputNum
		if n <= 0 || n > len(values) {
			n = len(values)
		}
		out, err := network.Feedforward(values[:n])
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if n < len(values) {
			fmt.Fprintf(w, "input=%v target=%v prediction=%.4f\n", values[:n], values[n:], out)
			continue
		}
		fmt.Fprintf(w, "input=%v prediction=%.4f\n", values, out)
	}
	return nil
}
