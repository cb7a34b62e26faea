package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/domonkosgyomorey/BrainBuilder/nn"
	"github.com/domonkosgyomorey/BrainBuilder/nn/layers"
)

func sumNetwork(t *testing.T) *nn.Network {
	d, err := layers.NewDenseFrom(mat.NewDense(1, 2, []float64{1, 1}), mat.NewVecDense(1, []float64{0}))
	require.NoError(t, err)
	h, err := nn.NewLearningRateHandler(nn.NoDecay, 0)
	require.NoError(t, err)
	n, err := nn.NewNetwork([]layers.Layer{d}, nn.MSE, h)
	require.NoError(t, err)
	return n
}

func TestPredict(t *testing.T) {
	var out bytes.Buffer
	in := "# x1,x2,y\n1,2,3\n\n0.5, 0.25\n"
	require.NoError(t, predict(sumNetwork(t), strings.NewReader(in), 2, &out))
	assert.Equal(t,
		"input=[1 2] target=[3] prediction=[3.0000]\ninput=[0.5 0.25] prediction=[0.7500]\n",
		out.String())
}

func TestPredictReportsLine(t *testing.T) {
	err := predict(sumNetwork(t), strings.NewReader("1,2\n# skip\n1,q\n"), 2, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at line 3")
}

func TestPredictWidthMismatch(t *testing.T) {
	err := predict(sumNetwork(t), strings.NewReader("1,2\n4\n"), 2, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}
