package nn

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

const crossEntropyEpsilon = 1e-8

// LossType selects the loss function of a network.
type LossType int

const (
	MSE LossType = iota
	MAE
	CrossEntropy
)

func (t LossType) String() string {
	switch t {
	case MSE:
		return "MSE"
	case MAE:
		return "MAE"
	case CrossEntropy:
		return "CrossEntropy"
	}
	return fmt.Sprintf("LossType(%d)", int(t))
}

// ParseLossType matches a loss name case-insensitively.
func ParseLossType(s string) (LossType, error) {
	for _, t := range []LossType{MSE, MAE, CrossEntropy} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown loss function %q", ErrConfig, s)
}

// Loss computes a scalar loss and its gradient with respect to the prediction.
type Loss struct {
	typ LossType
}

// NewLoss returns the loss for t, or ErrConfig for an unknown type.
func NewLoss(t LossType) (Loss, error) {
	switch t {
	case MSE, MAE, CrossEntropy:
		return Loss{typ: t}, nil
	}
	return Loss{}, fmt.Errorf("%w: unknown loss function %v", ErrConfig, t)
}

// Type returns the loss variant.
func (l Loss) Type() LossType { return l.typ }

// Value is the mean elementwise loss between predicted and target.
func (l Loss) Value(predicted, target mat.Vector) (float64, error) {
	if err := tensor.CheckLen("loss", target.Len(), predicted.Len()); err != nil {
		return 0, err
	}
	n := predicted.Len()
	total := 0.0
	for i := 0; i < n; i++ {
		p, t := predicted.AtVec(i), target.AtVec(i)
		switch l.typ {
		case MSE:
			total += (p - t) * (p - t)
		case MAE:
			total += math.Abs(p - t)
		case CrossEntropy:
			p = clampProbability(p)
			total -= t*math.Log(p) + (1-t)*math.Log(1-p)
		}
	}
	return total / float64(n), nil
}

// Gradient is dLoss/dPredicted. The cross-entropy gradient is not divided
// by the vector length, unlike its loss value.
func (l Loss) Gradient(predicted, target mat.Vector) (*mat.VecDense, error) {
	if err := tensor.CheckLen("loss gradient", target.Len(), predicted.Len()); err != nil {
		return nil, err
	}
	n := predicted.Len()
	grad := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		p, t := predicted.AtVec(i), target.AtVec(i)
		switch l.typ {
		case MSE:
			grad.SetVec(i, (p-t)*2/float64(n))
		case MAE:
			grad.SetVec(i, sign(p-t)/float64(n))
		case CrossEntropy:
			p = clampProbability(p)
			grad.SetVec(i, (p-t)/(p*(1-p)))
		}
	}
	return grad, nil
}

func clampProbability(p float64) float64 {
	return math.Max(crossEntropyEpsilon, math.Min(1-crossEntropyEpsilon, p))
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
