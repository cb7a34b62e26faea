package layers

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

const (
	leakyCoef = 0.1
	eluScale  = 2.0
	maxOutput = 1e6
)

// Function selects the transform applied by an Activation layer.
type Function int

const (
	Sigmoid Function = iota
	ReLU
	TanH
	LeakyReLU
	ELU
	Softmax
)

var functionNames = map[Function]string{
	Sigmoid:   "Sigmoid",
	ReLU:      "ReLU",
	TanH:      "TanH",
	LeakyReLU: "LeakyReLU",
	ELU:       "ELU",
	Softmax:   "Softmax",
}

func (f Function) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Function(%d)", int(f))
}

// ParseFunction matches an activation name case-insensitively.
func ParseFunction(name string) (Function, error) {
	for f, n := range functionNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown activation function %q", name)
}

type scalarFunc struct {
	activate   func(x float64) float64
	derivative func(x float64) float64
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// scalarLookup holds every elementwise function; Softmax works on the whole vector.
var scalarLookup = map[Function]scalarFunc{
	Sigmoid: {
		activate:   sigmoid,
		derivative: func(x float64) float64 { return sigmoid(x) * (1.0 - sigmoid(x)) },
	},
	ReLU: {
		activate: func(x float64) float64 { return math.Max(0, x) },
		derivative: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
	TanH: {
		activate: math.Tanh,
		derivative: func(x float64) float64 {
			t := math.Tanh(x)
			return 1.0 - t*t
		},
	},
	LeakyReLU: {
		activate: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return leakyCoef * x
		},
		derivative: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return leakyCoef
		},
	},
	ELU: {
		activate: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return eluScale * (math.Exp(x) - 1)
		},
		derivative: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return eluScale * math.Exp(x)
		},
	},
}

// Activation is a parameterless layer applying a fixed function.
// Outputs are clamped to [-1e6, 1e6].
type Activation struct {
	fn Function
}

// NewActivation creates an activation layer for fn.
func NewActivation(fn Function) (*Activation, error) {
	if _, ok := functionNames[fn]; !ok {
		return nil, fmt.Errorf("unsupported activation: %v", fn)
	}
	return &Activation{fn: fn}, nil
}

// Function returns the configured function.
func (a *Activation) Function() Function { return a.fn }

// Kind reports KindActivation.
func (a *Activation) Kind() Kind { return KindActivation }

func (a *Activation) Feedforward(x mat.Vector) (*mat.VecDense, Cache, error) {
	if x.Len() == 0 {
		return nil, Cache{}, fmt.Errorf("activation feedforward: %w", &tensor.DimensionError{Op: "activation", Want: 1, Got: 0})
	}
	var out *mat.VecDense
	if a.fn == Softmax {
		out = tensor.Softmax(x)
	} else {
		out = tensor.Apply(scalarLookup[a.fn].activate, x)
	}
	return tensor.Clamp(out, -maxOutput, maxOutput), Cache{input: mat.VecDenseCopyOf(x)}, nil
}

// Learn returns g⊙f'(x) for the cached input x. Softmax instead returns
// g - softmax(x)·sum(g).
func (a *Activation) Learn(_ float64, cache Cache, grad mat.Vector) (*mat.VecDense, error) {
	if cache.input == nil {
		return nil, fmt.Errorf("activation learn: %w", ErrMissingCache)
	}
	if err := tensor.CheckLen("activation learn", cache.input.Len(), grad.Len()); err != nil {
		return nil, err
	}
	if a.fn == Softmax {
		out := mat.VecDenseCopyOf(grad)
		out.AddScaledVec(out, -tensor.Sum(grad), tensor.Softmax(cache.input))
		return out, nil
	}
	return tensor.MulElem(grad, tensor.Apply(scalarLookup[a.fn].derivative, cache.input))
}

func (a *Activation) Record() Record {
	return Record{
		Type:               KindActivation.String(),
		ActivationFunction: a.fn.String(),
	}
}

func activationFromRecord(r Record) (*Activation, error) {
	if r.ActivationFunction == "" {
		return nil, fmt.Errorf("%w: activation function not specified", ErrDeserialize)
	}
	fn, err := ParseFunction(r.ActivationFunction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return &Activation{fn: fn}, nil
}
