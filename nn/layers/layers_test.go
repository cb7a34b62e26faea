package layers

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

func TestActivationLearnMatchesFiniteDifference(t *testing.T) {
	inputs := []float64{-1.3, -0.4, 0.7, 2.1}
	for _, fn := range []Function{Sigmoid, ReLU, TanH, LeakyReLU, ELU} {
		t.Run(fn.String(), func(t *testing.T) {
			act, err := NewActivation(fn)
			require.NoError(t, err)

			_, cache, err := act.Feedforward(tensor.NewVec(inputs))
			require.NoError(t, err)
			got, err := act.Learn(0.1, cache, tensor.Fill(len(inputs), 1))
			require.NoError(t, err)

			scalar := func(x float64) float64 {
				out, _, err := act.Feedforward(mat.NewVecDense(1, []float64{x}))
				require.NoError(t, err)
				return out.AtVec(0)
			}
			for i, x := range inputs {
				want := fd.Derivative(scalar, x, &fd.Settings{Formula: fd.Central})
				assert.InDelta(t, want, got.AtVec(i), 1e-5, "x=%v", x)
			}
		})
	}
}

func TestActivationValues(t *testing.T) {
	x := tensor.NewVec([]float64{-2, 3})
	cases := map[Function][]float64{
		ReLU:      {0, 3},
		LeakyReLU: {-0.2, 3},
		ELU:       {2 * (math.Exp(-2) - 1), 3},
		TanH:      {math.Tanh(-2), math.Tanh(3)},
	}
	for fn, want := range cases {
		act, err := NewActivation(fn)
		require.NoError(t, err)
		out, _, err := act.Feedforward(x)
		require.NoError(t, err)
		assert.True(t, floats.EqualApprox(tensor.Slice(out), want, 1e-12), "%v: got %v", fn, tensor.Slice(out))
	}
}

func TestActivationClampsOutput(t *testing.T) {
	act, err := NewActivation(ReLU)
	require.NoError(t, err)
	out, _, err := act.Feedforward(tensor.NewVec([]float64{5e7, -5e7}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1e6, 0}, tensor.Slice(out))
}

func TestSoftmaxSumsToOne(t *testing.T) {
	act, err := NewActivation(Softmax)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		in := make([]float64, 1+r.Intn(8))
		for i := range in {
			in[i] = (r.Float64() - 0.5) * 40
		}
		out, _, err := act.Feedforward(tensor.NewVec(in))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, tensor.Sum(out), 1e-9)
	}
}

func TestSoftmaxLearn(t *testing.T) {
	act, err := NewActivation(Softmax)
	require.NoError(t, err)
	in := tensor.NewVec([]float64{0.5, -1, 2})
	_, cache, err := act.Feedforward(in)
	require.NoError(t, err)

	grad := tensor.NewVec([]float64{0.1, 0.2, -0.4})
	got, err := act.Learn(0, cache, grad)
	require.NoError(t, err)

	s := tensor.Softmax(in)
	sum := 0.1 + 0.2 - 0.4
	for i := 0; i < 3; i++ {
		assert.InDelta(t, grad.AtVec(i)-s.AtVec(i)*sum, got.AtVec(i), 1e-12)
	}
}

func TestLearnWithoutCache(t *testing.T) {
	act, _ := NewActivation(Sigmoid)
	for _, l := range []Layer{NewDense(2, 2, rand.NewSource(1)), act, NewBatchNormalization(2)} {
		_, err := l.Learn(0.1, Cache{}, tensor.Fill(2, 1))
		assert.ErrorIs(t, err, ErrMissingCache, "%v", l.Kind())
	}
}

func TestDenseFeedforward(t *testing.T) {
	d, err := NewDenseFrom(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}), tensor.NewVec([]float64{0.5, -1}))
	require.NoError(t, err)
	assert.Equal(t, 3, d.InputSize())
	assert.Equal(t, 2, d.OutputSize())

	out, _, err := d.Feedforward(tensor.NewVec([]float64{1, 0, -1}))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1.5, -3}, tensor.Slice(out))

	_, _, err = d.Feedforward(tensor.NewVec([]float64{1, 2}))
	assert.ErrorIs(t, err, tensor.ErrDimensionMismatch)
}

func TestDenseLearnUsesUpdatedWeights(t *testing.T) {
	d, err := NewDenseFrom(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), tensor.NewVec([]float64{0, 0}))
	require.NoError(t, err)
	x := tensor.NewVec([]float64{1, 2})
	_, cache, err := d.Feedforward(x)
	require.NoError(t, err)

	lr := 0.5
	g := tensor.NewVec([]float64{1, -1})
	got, err := d.Learn(lr, cache, g)
	require.NoError(t, err)

	// W' = W - lr*g*xᵀ = [[0.5, 1], [3.5, 5]]
	assert.Equal(t, [][]float64{{0.5, 1}, {3.5, 5}}, tensor.Rows(d.Weight()))
	assert.Equal(t, []float64{-0.5, 0.5}, tensor.Slice(d.Bias()))
	// W'ᵀ·g = [0.5-3.5, 1-5]
	assert.Equal(t, []float64{-3, -4}, tensor.Slice(got))
}

func TestDenseSingleStepDescent(t *testing.T) {
	d := NewDense(3, 2, rand.NewSource(11))
	x := tensor.NewVec([]float64{0.3, -0.8, 1.1})
	target := tensor.NewVec([]float64{0.25, -0.5})

	mse := func(out *mat.VecDense) (float64, *mat.VecDense) {
		diff, err := tensor.Sub(out, target)
		require.NoError(t, err)
		var sq mat.VecDense
		sq.MulElemVec(diff, diff)
		grad := mat.NewVecDense(diff.Len(), nil)
		grad.ScaleVec(2/float64(diff.Len()), diff)
		return tensor.Mean(&sq), grad
	}

	out, cache, err := d.Feedforward(x)
	require.NoError(t, err)
	before, grad := mse(out)
	_, err = d.Learn(1e-3, cache, grad)
	require.NoError(t, err)

	out, _, err = d.Feedforward(x)
	require.NoError(t, err)
	after, _ := mse(out)
	assert.Less(t, after, before)
}

func TestDenseLearnDimensionMismatch(t *testing.T) {
	d := NewDense(2, 3, rand.NewSource(1))
	_, cache, err := d.Feedforward(tensor.Fill(2, 1))
	require.NoError(t, err)
	_, err = d.Learn(0.1, cache, tensor.Fill(2, 1))
	assert.ErrorIs(t, err, tensor.ErrDimensionMismatch)
}

func TestConstructorsPanicOnEmptySize(t *testing.T) {
	assert.Panics(t, func() { NewDense(0, 2, rand.NewSource(1)) })
	assert.Panics(t, func() { NewDense(2, -1, rand.NewSource(1)) })
	assert.Panics(t, func() { NewBatchNormalization(0) })
	assert.NotPanics(t, func() { NewBatchNormalization(1) })
}

func TestBatchNormalizationFeedforward(t *testing.T) {
	b := NewBatchNormalization(4)
	in := tensor.NewVec([]float64{1, 2, 3, 6})
	out, _, err := b.Feedforward(in)
	require.NoError(t, err)

	// mean 3, variance (4+1+0+9)/4 = 3.5
	std := math.Sqrt(3.5 + bnEpsilon)
	want := []float64{-2 / std, -1 / std, 0, 3 / std}
	assert.True(t, floats.EqualApprox(tensor.Slice(out), want, 1e-12), "got %v", tensor.Slice(out))
	assert.InDelta(t, 0, tensor.Mean(out), 1e-12)

	mean, variance := b.RunningStats()
	for i := range mean {
		assert.InDelta(t, 0.1*3, mean[i], 1e-12)
		assert.InDelta(t, 0.9+0.1*3.5, variance[i], 1e-12)
	}

	_, _, err = b.Feedforward(tensor.Fill(3, 1))
	assert.ErrorIs(t, err, tensor.ErrDimensionMismatch)
}

func TestBatchNormalizationLearn(t *testing.T) {
	b := NewBatchNormalization(3)
	in := tensor.NewVec([]float64{-1, 0.5, 2})
	_, cache, err := b.Feedforward(in)
	require.NoError(t, err)

	lr := 0.1
	g := tensor.NewVec([]float64{0.3, -0.2, 0.1})
	dx, err := b.Learn(lr, cache, g)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		xhat := cache.standardized.AtVec(i)
		assert.InDelta(t, 1-lr*g.AtVec(i)*xhat, b.Gamma().AtVec(i), 1e-12)
		assert.InDelta(t, -lr*g.AtVec(i), b.Beta().AtVec(i), 1e-12)
	}
	// mean 0.5, variance 1.5; dvar divides by 2(var³+eps) and dx̂ uses the updated gamma
	want := []float64{0.146260084038631, -0.108865847904809, 0.0464495975416707}
	require.Equal(t, 3, dx.Len())
	for i, w := range want {
		assert.InDelta(t, w, dx.AtVec(i), 1e-12, "dx[%d]", i)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	act, err := NewActivation(TanH)
	require.NoError(t, err)
	bn, err := NewBatchNormalizationFrom([]float64{1.5, 0.5}, []float64{0.1, -0.1})
	require.NoError(t, err)
	stack := []Layer{NewDense(3, 2, rand.NewSource(3)), act, bn}

	x := tensor.NewVec([]float64{0.2, -0.4, 0.9})
	for _, l := range stack {
		data, err := json.Marshal(l.Record())
		require.NoError(t, err)
		var rec Record
		require.NoError(t, json.Unmarshal(data, &rec))
		restored, err := FromRecord(rec)
		require.NoError(t, err)
		assert.Equal(t, l.Kind(), restored.Kind())

		want, _, err := l.Feedforward(x)
		require.NoError(t, err)
		got, _, err := restored.Feedforward(x)
		require.NoError(t, err)
		assert.True(t, floats.EqualApprox(tensor.Slice(want), tensor.Slice(got), 1e-12))
		x = want
	}
}

func TestFromRecordErrors(t *testing.T) {
	cases := map[string]Record{
		"no type":              {},
		"unknown type":         {Type: "Conv2D"},
		"dense no weights":     {Type: "Dense", Bias: []float64{1}},
		"dense bad rows":       {Type: "Dense", Weights: &MatrixRecord{Rows: 2, Columns: 1, Data: [][]float64{{1}}}, Bias: []float64{1, 2}},
		"dense bias length":    {Type: "Dense", Weights: &MatrixRecord{Rows: 1, Columns: 1, Data: [][]float64{{1}}}, Bias: []float64{1, 2}},
		"activation missing":   {Type: "Activation"},
		"activation unknown":   {Type: "Activation", ActivationFunction: "Swish"},
		"batchnorm no beta":    {Type: "BatchNormalization", Gamma: []float64{1}},
		"batchnorm mismatched": {Type: "BatchNormalization", Gamma: []float64{1}, Beta: []float64{1, 2}},
	}
	for name, rec := range cases {
		_, err := FromRecord(rec)
		assert.True(t, errors.Is(err, ErrDeserialize), "%s: got %v", name, err)
	}
}

func TestFromRecordActivationCaseInsensitive(t *testing.T) {
	l, err := FromRecord(Record{Type: "activation", ActivationFunction: "leakyrelu"})
	require.NoError(t, err)
	assert.Equal(t, LeakyReLU, l.(*Activation).Function())
}
