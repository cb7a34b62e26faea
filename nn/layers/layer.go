package layers

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDeserialize is returned for layer records that cannot be turned back into a layer.
	ErrDeserialize = errors.New("layer deserialization failed")
	// ErrMissingCache is returned by Learn when it is not given the cache of a Feedforward call.
	ErrMissingCache = errors.New("no cached forward state for backward pass")
)

// Kind tags the layer variants.
type Kind int

const (
	// KindDense is a fully-connected layer.
	KindDense Kind = iota
	// KindActivation applies an element-wise or softmax function.
	KindActivation
	// KindBatchNormalization standardizes and rescales its input.
	KindBatchNormalization
)

func (k Kind) String() string {
	switch k {
	case KindDense:
		return "Dense"
	case KindActivation:
		return "Activation"
	case KindBatchNormalization:
		return "BatchNormalization"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindDense, KindActivation, KindBatchNormalization} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown layer type %q", ErrDeserialize, s)
}

// Layer is a single differentiable unit of a network.
//
// Feedforward must not touch trainable parameters. The Cache it returns holds
// what the reverse pass needs and has to be handed to Learn together with the
// gradient of the loss with respect to that same output. Learn updates the
// parameters in place and returns the gradient with respect to the input.
type Layer interface {
	Kind() Kind
	Feedforward(x mat.Vector) (*mat.VecDense, Cache, error)
	Learn(learningRate float64, cache Cache, grad mat.Vector) (*mat.VecDense, error)
	Record() Record
}

// Cache is the forward state of one Feedforward call.
type Cache struct {
	input        *mat.VecDense
	centered     *mat.VecDense
	standardized *mat.VecDense
}

// Empty reports whether c was produced by a Feedforward call.
func (c Cache) Empty() bool {
	return c.input == nil && c.centered == nil && c.standardized == nil
}

// MatrixRecord is the serialized form of a weight matrix.
type MatrixRecord struct {
	Type    string      `json:"Type"`
	Rows    int         `json:"Rows"`
	Columns int         `json:"Columns"`
	Data    [][]float64 `json:"Data"`
}

// Record is the serialized form of a layer. Which fields are set depends on Type.
type Record struct {
	Type               string        `json:"Type"`
	Weights            *MatrixRecord `json:"Weights,omitempty"`
	Bias               []float64     `json:"Bias,omitempty"`
	Gamma              []float64     `json:"Gamma,omitempty"`
	Beta               []float64     `json:"Beta,omitempty"`
	ActivationFunction string        `json:"ActivationFunction,omitempty"`
}

// FromRecord rebuilds a layer from its record.
func FromRecord(r Record) (Layer, error) {
	if r.Type == "" {
		return nil, fmt.Errorf("%w: layer type not specified", ErrDeserialize)
	}
	kind, err := ParseKind(r.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindDense:
		return denseFromRecord(r)
	case KindActivation:
		return activationFromRecord(r)
	case KindBatchNormalization:
		return batchNormalizationFromRecord(r)
	}
	return nil, fmt.Errorf("%w: unknown layer type %q", ErrDeserialize, r.Type)
}
