package nn

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Default handler parameters.
const (
	DefaultMomentum  = 0.9
	DefaultDecayRate = 0.7
	DefaultDecayStep = 1000
	DefaultTotalStep = 10000
)

// Strategy is the decay schedule underlying a LearningRateHandler.
type Strategy int

const (
	StepDecay Strategy = iota
	ExpDecay
	TimeDecay
	CosineAnnealing
	NoDecay
)

var strategyNames = map[Strategy]string{
	StepDecay:       "StepDecay",
	ExpDecay:        "ExpDecay",
	TimeDecay:       "TimeDecay",
	CosineAnnealing: "CosineAnnealing",
	NoDecay:         "None",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy matches a strategy name case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown learning rate strategy %q", ErrConfig, name)
}

func (s Strategy) rate(base, iteration, decayRate float64, decayStep, totalStep int) float64 {
	switch s {
	case StepDecay:
		return base * math.Pow(decayRate, iteration/float64(decayStep))
	case ExpDecay:
		return base * math.Exp(-decayRate*iteration)
	case TimeDecay:
		return base / (1 + decayRate*iteration)
	case CosineAnnealing:
		return base * (1 + math.Cos(math.Pi*iteration/float64(totalStep))) / 2
	}
	return base
}

// LearningRateHandler produces a momentum-smoothed learning rate schedule.
//
// Every call to LearningRate advances the schedule by one iteration:
//
//	raw      = strategy(base, iteration, decayRate, decayStep, totalStep)
//	adjusted = momentum*previous + (1-momentum)*raw
type LearningRateHandler struct {
	strategy  Strategy
	baseRate  float64
	momentum  float64
	decayRate float64
	decayStep int
	totalStep int

	mu        sync.Mutex
	previous  float64
	iteration int
}

// HandlerOption overrides one of the handler defaults.
type HandlerOption func(*LearningRateHandler)

// WithMomentum sets the smoothing factor between successive rates.
func WithMomentum(m float64) HandlerOption {
	return func(h *LearningRateHandler) { h.momentum = m }
}

// WithDecayRate sets the rate used by the decaying strategies.
func WithDecayRate(r float64) HandlerOption {
	return func(h *LearningRateHandler) { h.decayRate = r }
}

// WithDecayStep sets the epoch interval of StepDecay.
func WithDecayStep(steps int) HandlerOption {
	return func(h *LearningRateHandler) { h.decayStep = steps }
}

// WithTotalStep sets the period of CosineAnnealing.
func WithTotalStep(steps int) HandlerOption {
	return func(h *LearningRateHandler) { h.totalStep = steps }
}

// NewLearningRateHandler builds a handler for the given strategy. Unset
// parameters take the Default* values.
func NewLearningRateHandler(strategy Strategy, baseRate float64, opts ...HandlerOption) (*LearningRateHandler, error) {
	if _, ok := strategyNames[strategy]; !ok {
		return nil, fmt.Errorf("%w: unknown learning rate strategy %v", ErrConfig, strategy)
	}
	h := &LearningRateHandler{
		strategy:  strategy,
		baseRate:  baseRate,
		momentum:  DefaultMomentum,
		decayRate: DefaultDecayRate,
		decayStep: DefaultDecayStep,
		totalStep: DefaultTotalStep,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.decayStep <= 0 || h.totalStep <= 0 {
		return nil, fmt.Errorf("%w: decay step and total step must be positive, got %d and %d",
			ErrConfig, h.decayStep, h.totalStep)
	}
	h.previous = baseRate
	return h, nil
}

// LearningRate advances the schedule and returns the smoothed rate.
func (h *LearningRateHandler) LearningRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	raw := h.strategy.rate(h.baseRate, float64(h.iteration), h.decayRate, h.decayStep, h.totalStep)
	adjusted := h.momentum*h.previous + (1-h.momentum)*raw
	h.previous = adjusted
	h.iteration++
	return adjusted
}

func (h *LearningRateHandler) Strategy() Strategy { return h.strategy }
func (h *LearningRateHandler) BaseRate() float64  { return h.baseRate }
func (h *LearningRateHandler) Momentum() float64  { return h.momentum }
func (h *LearningRateHandler) DecayRate() float64 { return h.decayRate }
func (h *LearningRateHandler) DecayStep() int     { return h.decayStep }
func (h *LearningRateHandler) TotalStep() int     { return h.totalStep }

// Iteration is the number of LearningRate calls so far.
func (h *LearningRateHandler) Iteration() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.iteration
}
