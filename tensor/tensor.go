// Package tensor holds the vector and matrix helpers shared by the layers,
// built on gonum's dense types.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDimensionMismatch is matched by every *DimensionError.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// DimensionError reports an operation applied to operands of incompatible size.
type DimensionError struct {
	Op   string
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: expected %d, got %d", e.Op, e.Want, e.Got)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// CheckLen returns a *DimensionError when got != want.
func CheckLen(op string, want, got int) error {
	if want != got {
		return &DimensionError{Op: op, Want: want, Got: got}
	}
	return nil
}

// NewVec copies data into a new vector.
func NewVec(data []float64) *mat.VecDense {
	return mat.NewVecDense(len(data), append([]float64(nil), data...))
}

// Fill returns a vector of length n with every element set to v.
func Fill(n int, v float64) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return mat.NewVecDense(n, data)
}

// Slice copies the elements of v into a new slice.
func Slice(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Apply maps fn over every element of v.
func Apply(fn func(float64) float64, v mat.Vector) *mat.VecDense {
	n := v.Len()
	o := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		o.SetVec(i, fn(v.AtVec(i)))
	}
	return o
}

// Clamp limits every element of v to [lo, hi] in place.
func Clamp(v *mat.VecDense, lo, hi float64) *mat.VecDense {
	raw := v.RawVector()
	for i := 0; i < raw.N; i++ {
		x := raw.Data[i*raw.Inc]
		raw.Data[i*raw.Inc] = math.Max(lo, math.Min(hi, x))
	}
	return v
}

// Sum adds up the elements of v.
func Sum(v mat.Vector) float64 {
	return mat.Sum(v)
}

// Mean is the arithmetic mean of the elements of v.
func Mean(v mat.Vector) float64 {
	return stat.Mean(Slice(v), nil)
}

// Softmax computes exp(x_i)/sum_j exp(x_j). The maximum is subtracted first
// so large logits do not overflow. It panics on an empty vector.
func Softmax(v mat.Vector) *mat.VecDense {
	n := v.Len()
	if n == 0 {
		panic(mat.ErrZeroLength)
	}
	maxLogit := v.AtVec(0)
	for i := 1; i < n; i++ {
		maxLogit = math.Max(maxLogit, v.AtVec(i))
	}
	exps := make([]float64, n)
	expSum := 0.0
	for i := range exps {
		exps[i] = math.Exp(v.AtVec(i) - maxLogit)
		expSum += exps[i]
	}
	for i := range exps {
		exps[i] /= expSum
	}
	return mat.NewVecDense(n, exps)
}

// MulElem returns the elementwise product a⊙b.
func MulElem(a, b mat.Vector) (*mat.VecDense, error) {
	if err := CheckLen("MulElem", a.Len(), b.Len()); err != nil {
		return nil, err
	}
	var o mat.VecDense
	o.MulElemVec(a, b)
	return &o, nil
}

// Sub returns a-b.
func Sub(a, b mat.Vector) (*mat.VecDense, error) {
	if err := CheckLen("Sub", a.Len(), b.Len()); err != nil {
		return nil, err
	}
	var o mat.VecDense
	o.SubVec(a, b)
	return &o, nil
}

// MatVec returns m·x, validating that m has x.Len() columns.
func MatVec(m mat.Matrix, x mat.Vector) (*mat.VecDense, error) {
	r, c := m.Dims()
	if err := CheckLen("MatVec", c, x.Len()); err != nil {
		return nil, err
	}
	o := mat.NewVecDense(r, nil)
	o.MulVec(m, x)
	return o, nil
}

// Outer returns the outer product u·vᵀ.
func Outer(u, v mat.Vector) *mat.Dense {
	o := mat.NewDense(u.Len(), v.Len(), nil)
	o.Outer(1, u, v)
	return o
}

// Rows returns the rows of m as nested slices (row-major).
func Rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// FromRows builds a rows×cols matrix from nested row-major slices.
func FromRows(rows, cols int, data [][]float64) (*mat.Dense, error) {
	if err := CheckLen("FromRows rows", rows, len(data)); err != nil {
		return nil, err
	}
	flat := make([]float64, 0, rows*cols)
	for i, row := range data {
		if err := CheckLen(fmt.Sprintf("FromRows row %d", i), cols, len(row)); err != nil {
			return nil, err
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(rows, cols, flat), nil
}
