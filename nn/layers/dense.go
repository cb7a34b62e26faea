package layers

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

// Dense is a fully-connected layer computing y = W·x + b.
//
// W has shape [outputSize, inputSize] and b has length outputSize.
type Dense struct {
	weight *mat.Dense
	bias   *mat.VecDense
}

// NewDense creates a layer with weights and bias drawn from a standard normal
// distribution. A nil src uses the global source. NewDense panics if either
// size is not positive.
func NewDense(inputSize, outputSize int, src rand.Source) *Dense {
	if inputSize <= 0 || outputSize <= 0 {
		panic(fmt.Sprintf("layers: dense sizes must be positive, got %d x %d", inputSize, outputSize))
	}
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	return &Dense{
		weight: mat.NewDense(outputSize, inputSize, randomArray(outputSize*inputSize, dist)),
		bias:   mat.NewVecDense(outputSize, randomArray(outputSize, dist)),
	}
}

// NewDenseFrom wraps existing parameters. They are copied.
func NewDenseFrom(weight mat.Matrix, bias mat.Vector) (*Dense, error) {
	rows, _ := weight.Dims()
	if err := tensor.CheckLen("NewDenseFrom bias", rows, bias.Len()); err != nil {
		return nil, err
	}
	return &Dense{
		weight: mat.DenseCopyOf(weight),
		bias:   mat.VecDenseCopyOf(bias),
	}, nil
}

func randomArray(size int, dist distuv.Normal) []float64 {
	data := make([]float64, size)
	for i := range data {
		data[i] = dist.Rand()
	}
	return data
}

// Kind reports KindDense.
func (d *Dense) Kind() Kind { return KindDense }

// InputSize is the number of weight columns.
func (d *Dense) InputSize() int {
	_, c := d.weight.Dims()
	return c
}

// OutputSize is the number of weight rows.
func (d *Dense) OutputSize() int {
	r, _ := d.weight.Dims()
	return r
}

// Weight returns the live weight matrix.
func (d *Dense) Weight() *mat.Dense { return d.weight }

// Bias returns the live bias vector.
func (d *Dense) Bias() *mat.VecDense { return d.bias }

// Feedforward returns W·x + b and caches x for Learn.
func (d *Dense) Feedforward(x mat.Vector) (*mat.VecDense, Cache, error) {
	out, err := tensor.MatVec(d.weight, x)
	if err != nil {
		return nil, Cache{}, fmt.Errorf("dense feedforward: %w", err)
	}
	out.AddVec(out, d.bias)
	return out, Cache{input: mat.VecDenseCopyOf(x)}, nil
}

// Learn applies W -= lr·(g·xᵀ) and b -= lr·g, then returns Wᵀ·g computed
// with the already updated weights.
func (d *Dense) Learn(learningRate float64, cache Cache, grad mat.Vector) (*mat.VecDense, error) {
	if cache.input == nil {
		return nil, fmt.Errorf("dense learn: %w", ErrMissingCache)
	}
	if err := tensor.CheckLen("dense learn gradient", d.OutputSize(), grad.Len()); err != nil {
		return nil, err
	}
	if err := tensor.CheckLen("dense learn cached input", d.InputSize(), cache.input.Len()); err != nil {
		return nil, err
	}

	dw := tensor.Outer(grad, cache.input)
	dw.Scale(learningRate, dw)
	d.weight.Sub(d.weight, dw)
	d.bias.AddScaledVec(d.bias, -learningRate, grad)

	out := mat.NewVecDense(d.InputSize(), nil)
	out.MulVec(d.weight.T(), grad)
	return out, nil
}

// Record serializes the weights and bias.
func (d *Dense) Record() Record {
	rows, cols := d.weight.Dims()
	return Record{
		Type: KindDense.String(),
		Weights: &MatrixRecord{
			Type:    "Matrix",
			Rows:    rows,
			Columns: cols,
			Data:    tensor.Rows(d.weight),
		},
		Bias: tensor.Slice(d.bias),
	}
}

func denseFromRecord(r Record) (*Dense, error) {
	if r.Weights == nil || r.Bias == nil {
		return nil, fmt.Errorf("%w: dense layer parameters not specified", ErrDeserialize)
	}
	w := r.Weights
	if w.Rows <= 0 || w.Columns <= 0 {
		return nil, fmt.Errorf("%w: dense weights must have positive Rows and Columns, got %dx%d",
			ErrDeserialize, w.Rows, w.Columns)
	}
	weight, err := tensor.FromRows(w.Rows, w.Columns, w.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: dense weights: %v", ErrDeserialize, err)
	}
	if len(r.Bias) != w.Rows {
		return nil, fmt.Errorf("%w: dense bias has %d entries, expected %d", ErrDeserialize, len(r.Bias), w.Rows)
	}
	return &Dense{weight: weight, bias: tensor.NewVec(r.Bias)}, nil
}
