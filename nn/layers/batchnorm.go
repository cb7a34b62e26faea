package layers

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

const (
	bnMomentum = 0.9
	bnEpsilon  = 1e-5
)

// BatchNormalization standardizes a vector across its own entries and then
// applies a learned per-feature scale (gamma) and shift (beta).
//
// The running mean and variance are tracked for inference but are not read
// while training. They are the only state Feedforward writes, so they sit
// behind a mutex.
type BatchNormalization struct {
	size  int
	gamma *mat.VecDense
	beta  *mat.VecDense

	mu              sync.Mutex
	runningMean     *mat.VecDense
	runningVariance *mat.VecDense
}

// NewBatchNormalization creates a layer for vectors of the given size with
// gamma = 1 and beta = 0. It panics if size is not positive.
func NewBatchNormalization(size int) *BatchNormalization {
	if size <= 0 {
		panic(fmt.Sprintf("layers: batch normalization size must be positive, got %d", size))
	}
	return &BatchNormalization{
		size:            size,
		gamma:           tensor.Fill(size, 1),
		beta:            tensor.Fill(size, 0),
		runningMean:     tensor.Fill(size, 0),
		runningVariance: tensor.Fill(size, 1),
	}
}

// NewBatchNormalizationFrom restores a layer from trained gamma and beta.
func NewBatchNormalizationFrom(gamma, beta []float64) (*BatchNormalization, error) {
	if len(gamma) == 0 {
		return nil, &tensor.DimensionError{Op: "NewBatchNormalizationFrom gamma", Want: 1, Got: 0}
	}
	if err := tensor.CheckLen("NewBatchNormalizationFrom beta", len(gamma), len(beta)); err != nil {
		return nil, err
	}
	b := NewBatchNormalization(len(gamma))
	b.gamma = tensor.NewVec(gamma)
	b.beta = tensor.NewVec(beta)
	return b, nil
}

// Kind reports KindBatchNormalization.
func (b *BatchNormalization) Kind() Kind { return KindBatchNormalization }

// Size is the expected input length.
func (b *BatchNormalization) Size() int { return b.size }

// Gamma returns the live scale vector.
func (b *BatchNormalization) Gamma() *mat.VecDense { return b.gamma }

// Beta returns the live shift vector.
func (b *BatchNormalization) Beta() *mat.VecDense { return b.beta }

// RunningStats returns copies of the running mean and variance.
func (b *BatchNormalization) RunningStats() (mean, variance []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tensor.Slice(b.runningMean), tensor.Slice(b.runningVariance)
}

// Feedforward standardizes x, applies gamma and beta, and updates the
// running statistics.
func (b *BatchNormalization) Feedforward(x mat.Vector) (*mat.VecDense, Cache, error) {
	if err := tensor.CheckLen("batchnorm feedforward", b.size, x.Len()); err != nil {
		return nil, Cache{}, err
	}

	mean := tensor.Mean(x)
	centered := mat.VecDenseCopyOf(x)
	centered.AddVec(centered, tensor.Fill(b.size, -mean))

	var squared mat.VecDense
	squared.MulElemVec(centered, centered)
	variance := tensor.Mean(&squared)

	standardized := mat.NewVecDense(b.size, nil)
	standardized.ScaleVec(1/math.Sqrt(variance+bnEpsilon), centered)

	out := mat.NewVecDense(b.size, nil)
	out.MulElemVec(b.gamma, standardized)
	out.AddVec(out, b.beta)

	b.mu.Lock()
	b.runningMean.AddScaledVec(scaled(bnMomentum, b.runningMean), 1-bnMomentum, tensor.Fill(b.size, mean))
	b.runningVariance.AddScaledVec(scaled(bnMomentum, b.runningVariance), 1-bnMomentum, tensor.Fill(b.size, variance))
	b.mu.Unlock()

	return out, Cache{centered: centered, standardized: standardized}, nil
}

func scaled(alpha float64, v mat.Vector) *mat.VecDense {
	o := mat.NewVecDense(v.Len(), nil)
	o.ScaleVec(alpha, v)
	return o
}

// Learn updates gamma and beta by plain gradient descent and returns the
// input gradient. The input gradient is computed with the updated gamma.
func (b *BatchNormalization) Learn(learningRate float64, cache Cache, grad mat.Vector) (*mat.VecDense, error) {
	if cache.centered == nil || cache.standardized == nil {
		return nil, fmt.Errorf("batchnorm learn: %w", ErrMissingCache)
	}
	if err := tensor.CheckLen("batchnorm learn", b.size, grad.Len()); err != nil {
		return nil, err
	}
	if err := tensor.CheckLen("batchnorm learn cached input", b.size, cache.centered.Len()); err != nil {
		return nil, err
	}

	var dGamma mat.VecDense
	dGamma.MulElemVec(grad, cache.standardized)
	b.gamma.AddScaledVec(b.gamma, -learningRate, &dGamma)
	b.beta.AddScaledVec(b.beta, -learningRate, grad)

	n := float64(b.size)
	c := cache.centered
	var squared mat.VecDense
	squared.MulElemVec(c, c)
	variance := tensor.Mean(&squared)
	invStd := 1 / math.Sqrt(variance+bnEpsilon)
	varDenom := 2 * (math.Pow(variance, 3) + bnEpsilon)

	dx := mat.NewVecDense(b.size, nil)
	for i := 0; i < b.size; i++ {
		ci := c.AtVec(i)
		dxhat := grad.AtVec(i) * b.gamma.AtVec(i)
		dvar := -0.5 * dxhat * ci / varDenom
		dmean := -dxhat*invStd + (-2.0/n)*dvar*ci
		dx.SetVec(i, dxhat*invStd+(2.0/n)*dvar*ci+dmean/n)
	}
	return dx, nil
}

// Record serializes gamma and beta.
func (b *BatchNormalization) Record() Record {
	return Record{
		Type:  KindBatchNormalization.String(),
		Gamma: tensor.Slice(b.gamma),
		Beta:  tensor.Slice(b.beta),
	}
}

func batchNormalizationFromRecord(r Record) (*BatchNormalization, error) {
	if r.Gamma == nil || r.Beta == nil {
		return nil, fmt.Errorf("%w: batch normalization parameters not specified", ErrDeserialize)
	}
	b, err := NewBatchNormalizationFrom(r.Gamma, r.Beta)
	if err != nil {
		return nil, fmt.Errorf("%w: batch normalization: %v", ErrDeserialize, err)
	}
	return b, nil
}
