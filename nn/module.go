package nn

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/domonkosgyomorey/BrainBuilder/nn/layers"
	"github.com/domonkosgyomorey/BrainBuilder/tensor"
)

var (
	// ErrConfig reports an invalid construction or training parameter.
	ErrConfig = errors.New("invalid configuration")
	// ErrInvalidState reports a model document that cannot be used.
	ErrInvalidState = errors.New("invalid state")
	// ErrEmptyDataset is returned when training on no samples.
	ErrEmptyDataset = errors.New("empty dataset")
)

const defaultLogEvery = 100

// Network chains layers in order and trains them against a loss.
//
// A Network is not safe for concurrent Train calls; Feedforward may be
// called concurrently as long as no training is in progress.
type Network struct {
	layers       []layers.Layer
	loss         Loss
	handler      *LearningRateHandler
	learningRate float64

	logger   *logrus.Logger
	workers  int
	logEvery int
	rng      *rand.Rand
}

// Option configures a Network.
type Option func(*Network)

// WithLogger sets the logger used for training reports.
func WithLogger(l *logrus.Logger) Option {
	return func(n *Network) { n.logger = l }
}

// WithWorkers bounds the number of goroutines used by SGD.
func WithWorkers(workers int) Option {
	return func(n *Network) { n.workers = workers }
}

// WithSeed seeds the generator used to shuffle mini-batches.
func WithSeed(seed uint64) Option {
	return func(n *Network) { n.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogEvery sets how often (in epochs) progress is logged at info level.
func WithLogEvery(epochs int) Option {
	return func(n *Network) { n.logEvery = epochs }
}

// NewNetwork builds a network from an ordered layer stack.
func NewNetwork(stack []layers.Layer, lossType LossType, handler *LearningRateHandler, opts ...Option) (*Network, error) {
	if len(stack) == 0 {
		return nil, fmt.Errorf("%w: network needs at least one layer", ErrConfig)
	}
	for i, l := range stack {
		if l == nil {
			return nil, fmt.Errorf("%w: layer %d is nil", ErrConfig, i)
		}
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: learning rate handler is nil", ErrConfig)
	}
	loss, err := NewLoss(lossType)
	if err != nil {
		return nil, err
	}

	n := &Network{
		layers:   append([]layers.Layer(nil), stack...),
		loss:     loss,
		handler:  handler,
		workers:  runtime.NumCPU(),
		logEvery: defaultLogEvery,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logrus.New()
	}
	if n.rng == nil {
		n.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	if n.workers < 1 {
		n.workers = 1
	}
	if n.logEvery < 1 {
		n.logEvery = 1
	}
	return n, nil
}

// Layers returns the layer stack in forward order.
func (n *Network) Layers() []layers.Layer {
	return append([]layers.Layer(nil), n.layers...)
}

// Loss returns the configured loss.
func (n *Network) Loss() Loss { return n.loss }

// Handler returns the learning rate handler.
func (n *Network) Handler() *LearningRateHandler { return n.handler }

// LearningRate is the rate computed at the start of the latest epoch, or 0
// before the first one.
func (n *Network) LearningRate() float64 { return n.learningRate }

// Feedforward applies each layer in sequence.
func (n *Network) Feedforward(input []float64) ([]float64, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("feedforward: %w", &tensor.DimensionError{Op: "network input", Want: 1, Got: 0})
	}
	out, _, err := n.forward(tensor.NewVec(input))
	if err != nil {
		return nil, err
	}
	return tensor.Slice(out), nil
}

// forward runs the stack and returns each layer's cache in forward order.
func (n *Network) forward(x mat.Vector) (*mat.VecDense, []layers.Cache, error) {
	caches := make([]layers.Cache, len(n.layers))
	out := mat.VecDenseCopyOf(x)
	for i, layer := range n.layers {
		next, cache, err := layer.Feedforward(out)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d (%v): %w", i, layer.Kind(), err)
		}
		out, caches[i] = next, cache
	}
	return out, caches, nil
}

// learn folds grad through the layers in reverse order.
func (n *Network) learn(grad mat.Vector, caches []layers.Cache) error {
	if err := tensor.CheckLen("learn caches", len(n.layers), len(caches)); err != nil {
		return err
	}
	xi := grad
	for i := len(n.layers) - 1; i >= 0; i-- {
		next, err := n.layers[i].Learn(n.learningRate, caches[i], xi)
		if err != nil {
			return fmt.Errorf("layer %d (%v): %w", i, n.layers[i].Kind(), err)
		}
		xi = next
	}
	return nil
}
