package nn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/domonkosgyomorey/BrainBuilder/nn/layers"
	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

// Sample is one training example.
type Sample struct {
	Input  []float64
	Target []float64
}

// Dataset is an ordered list of samples. Duplicate inputs are kept.
type Dataset []Sample

// Optimizer selects the training algorithm.
type Optimizer int

const (
	// OptimizerNone is sequential per-sample backpropagation.
	OptimizerNone Optimizer = iota
	// OptimizerSGD is parallel mini-batch gradient descent.
	OptimizerSGD
)

func (o Optimizer) String() string {
	switch o {
	case OptimizerNone:
		return "None"
	case OptimizerSGD:
		return "SGD"
	}
	return fmt.Sprintf("Optimizer(%d)", int(o))
}

// ParseOptimizer matches "None" or "SGD".
func ParseOptimizer(s string) (Optimizer, error) {
	switch s {
	case "None", "none", "":
		return OptimizerNone, nil
	case "SGD", "sgd":
		return OptimizerSGD, nil
	}
	return 0, fmt.Errorf("%w: unknown optimizer %q", ErrConfig, s)
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch        int
	AvgLoss      float64
	LearningRate float64
	Duration     time.Duration
}

// Train runs maxEpochs epochs over data. Each epoch takes one step of the
// learning rate handler, then one pass of the selected algorithm. batchSize
// only matters for OptimizerSGD.
//
// ctx is checked between epochs; a started epoch always completes.
func (n *Network) Train(ctx context.Context, opt Optimizer, maxEpochs int, data Dataset, batchSize int) ([]EpochStats, error) {
	var pass func(Dataset, int) ([]float64, error)
	switch opt {
	case OptimizerNone:
		pass = n.backpropagation
	case OptimizerSGD:
		pass = n.sgd
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %v", ErrConfig, opt)
	}
	if maxEpochs < 0 {
		return nil, fmt.Errorf("%w: max epochs must not be negative, got %d", ErrConfig, maxEpochs)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrConfig, batchSize)
	}
	if len(data) == 0 {
		return nil, ErrEmptyDataset
	}

	history := make([]EpochStats, 0, maxEpochs)
	for epoch := 1; epoch <= maxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		start := time.Now()
		n.learningRate = n.handler.LearningRate()
		losses, err := pass(data, batchSize)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		stats := EpochStats{
			Epoch:        epoch,
			AvgLoss:      stat.Mean(losses, nil),
			LearningRate: n.learningRate,
			Duration:     time.Since(start),
		}
		history = append(history, stats)
		n.report(stats, maxEpochs)
	}
	return history, nil
}

func (n *Network) report(s EpochStats, maxEpochs int) {
	entry := n.logger.WithFields(logrus.Fields{
		"epoch":    fmt.Sprintf("%d/%d", s.Epoch, maxEpochs),
		"avg_loss": s.AvgLoss,
		"lr":       s.LearningRate,
		"duration": s.Duration,
	})
	if s.Epoch == 1 || s.Epoch%n.logEvery == 0 || s.Epoch == maxEpochs {
		entry.Info("epoch complete")
		return
	}
	entry.Debug("epoch complete")
}

// backpropagation feeds every sample in order and learns from it immediately.
func (n *Network) backpropagation(data Dataset, _ int) ([]float64, error) {
	losses := make([]float64, 0, len(data))
	for i, s := range data {
		loss, grad, caches, err := n.evaluate(s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		losses = append(losses, loss)
		if err := n.learn(grad, caches); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return losses, nil
}

func (n *Network) evaluate(s Sample) (float64, *mat.VecDense, []layers.Cache, error) {
	if len(s.Input) == 0 || len(s.Target) == 0 {
		return 0, nil, nil, &tensor.DimensionError{Op: "sample", Want: 1, Got: 0}
	}
	prediction, caches, err := n.forward(tensor.NewVec(s.Input))
	if err != nil {
		return 0, nil, nil, err
	}
	target := tensor.NewVec(s.Target)
	loss, err := n.loss.Value(prediction, target)
	if err != nil {
		return 0, nil, nil, err
	}
	grad, err := n.loss.Gradient(prediction, target)
	if err != nil {
		return 0, nil, nil, err
	}
	return loss, grad, caches, nil
}

// sgd shuffles the data, splits it into consecutive mini-batches and
// evaluates them concurrently. The mean gradient of every batch is summed and
// applied once. The sum is not divided by the number of batches.
//
// The caches used for that single update are those of the last sample of the
// last batch, which is what a sequential pass would have left behind.
func (n *Network) sgd(data Dataset, batchSize int) ([]float64, error) {
	batches := chunk(n.shuffle(len(data)), batchSize)
	losses := newLossLog(len(batches))
	acc := newGradientAccumulator(len(batches))

	var (
		wg         sync.WaitGroup
		errMu      sync.Mutex
		firstErr   error
		lastCaches []layers.Cache
	)
	jobs := make(chan int)
	workers := min(n.workers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				caches, err := n.runBatch(data, batches[b], b, losses, acc)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("batch %d: %w", b, err)
					}
					errMu.Unlock()
					continue
				}
				if b == len(batches)-1 {
					lastCaches = caches
				}
			}
		}()
	}
	for b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	overall, err := acc.sum()
	if err != nil {
		return nil, err
	}
	if err := n.learn(overall, lastCaches); err != nil {
		return nil, err
	}
	return losses.values(), nil
}

func (n *Network) runBatch(data Dataset, batch []int, b int, losses *lossLog, acc *gradientAccumulator) ([]layers.Cache, error) {
	var (
		batchSum *mat.VecDense
		caches   []layers.Cache
	)
	for _, idx := range batch {
		loss, grad, c, err := n.evaluate(data[idx])
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", idx, err)
		}
		losses.add(b, loss)
		if batchSum == nil {
			batchSum = mat.NewVecDense(grad.Len(), nil)
		}
		if err := tensor.CheckLen("batch gradient", batchSum.Len(), grad.Len()); err != nil {
			return nil, fmt.Errorf("sample %d: %w", idx, err)
		}
		batchSum.AddScaledVec(batchSum, 1/float64(len(batch)), grad)
		caches = c
	}
	acc.add(b, batchSum)
	return caches, nil
}

// shuffle returns a Fisher-Yates permutation of [0, size).
func (n *Network) shuffle(size int) []int {
	order := make([]int, size)
	for i := range order {
		order[i] = i
	}
	for i := size - 1; i > 0; i-- {
		j := n.rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func chunk(order []int, size int) [][]int {
	batches := make([][]int, 0, (len(order)+size-1)/size)
	for start := 0; start < len(order); start += size {
		end := min(start+size, len(order))
		batches = append(batches, order[start:end])
	}
	return batches
}

// lossLog collects per-sample losses from concurrent batches. Values are
// kept per batch so the flattened order does not depend on scheduling.
type lossLog struct {
	mu      sync.Mutex
	batches [][]float64
}

func newLossLog(batches int) *lossLog {
	return &lossLog{batches: make([][]float64, batches)}
}

func (l *lossLog) add(batch int, loss float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches[batch] = append(l.batches[batch], loss)
}

func (l *lossLog) values() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []float64
	for _, b := range l.batches {
		out = append(out, b...)
	}
	return out
}

// gradientAccumulator sums batch gradients. Contributions are folded in
// batch order so the result is identical however batches were scheduled.
type gradientAccumulator struct {
	mu    sync.Mutex
	parts [][]float64
}

func newGradientAccumulator(batches int) *gradientAccumulator {
	return &gradientAccumulator{parts: make([][]float64, batches)}
}

func (a *gradientAccumulator) add(batch int, grad mat.Vector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parts[batch] = tensor.Slice(grad)
}

func (a *gradientAccumulator) sum() (*mat.VecDense, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total []float64
	for i, part := range a.parts {
		if part == nil {
			return nil, fmt.Errorf("%w: batch %d contributed no gradient", ErrInvalidState, i)
		}
		if total == nil {
			total = make([]float64, len(part))
		}
		if err := tensor.CheckLen("gradient sum", len(total), len(part)); err != nil {
			return nil, err
		}
		floats.Add(total, part)
	}
	return mat.NewVecDense(len(total), total), nil
}
