// Package aggregator implements the round fan-in: the four aggregation
// strategies that turn one round's client outputs into new global weights
// and updated optimizer state. Every strategy runs as a single-threaded
// reduction over sorted client outputs, so aggregation is deterministic
// given the same inputs.
package aggregator

import (
	"fmt"

	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/tensor"
)

// Strategy tags the aggregation variant. It is selected once at initialize
// time and carried in the server state.
type Strategy string

const (
	StrategyAvg          Strategy = "avg"
	StrategyAdaptive     Strategy = "adaptive"
	StrategyPosterior    Strategy = "posterior"
	StrategyPersonalized Strategy = "personalized"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAvg, StrategyAdaptive, StrategyPosterior, StrategyPersonalized:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", errors.ErrConfig, s)
	}
}

// Posterior is a client's diagonal-Gaussian approximation of its local
// posterior over trainable parameters: a running mean and variance of the
// parameter states visited during local optimization.
type Posterior struct {
	Mean     map[string]tensor.Tensor `json:"mean" cbor:"mean"`
	Variance map[string]tensor.Tensor `json:"variance" cbor:"variance"`
	Steps    uint64                   `json:"steps" cbor:"steps"`
}

// Adaptation is a client's personalization payload: the delta reached after
// the adaptation phase plus its score on the held-out split.
type Adaptation struct {
	Delta           tensor.Delta `json:"delta" cbor:"delta"`
	HoldoutLoss     float64      `json:"holdout_loss" cbor:"holdout_loss"`
	HoldoutExamples uint64       `json:"holdout_examples" cbor:"holdout_examples"`
}

// Output is one client's contribution to a round. It is produced exactly
// once per participating client, consumed exactly once by the aggregator,
// and discarded afterwards.
type Output struct {
	ClientID    string
	Delta       tensor.Delta
	NumExamples uint64
	Metrics     map[string]float64
	Posterior   *Posterior
	Adaptation  *Adaptation
}

// State holds the server-side optimizer accumulators. It is an immutable
// value owned by the server state: strategies return a replacement, never
// mutate in place. Only the fields for the tagged strategy are populated.
type State struct {
	Strategy Strategy `json:"strategy" cbor:"strategy"`

	// Adaptive: first/second moment accumulators and the recurrence step.
	FirstMoment  tensor.Delta `json:"first_moment,omitempty" cbor:"first_moment,omitempty"`
	SecondMoment tensor.Delta `json:"second_moment,omitempty" cbor:"second_moment,omitempty"`
	Step         uint64       `json:"step,omitempty" cbor:"step,omitempty"`

	// Posterior: the combined global variance fed back as next round's prior.
	Variance map[string]tensor.Tensor `json:"variance,omitempty" cbor:"variance,omitempty"`
}

// NewState builds zeroed accumulators for the given strategy, shaped to the
// trainable group of w.
func NewState(strategy Strategy, w tensor.Weights) (State, error) {
	switch strategy {
	case StrategyAvg, StrategyPersonalized:
		return State{Strategy: strategy}, nil
	case StrategyAdaptive:
		return State{
			Strategy:     strategy,
			FirstMoment:  w.ZeroDelta(),
			SecondMoment: w.ZeroDelta(),
		}, nil
	case StrategyPosterior:
		variance := make(map[string]tensor.Tensor, len(w.Trainable))
		for name, t := range w.Trainable {
			variance[name] = tensor.NewTensor(t.Shape...)
		}

		return State{Strategy: strategy, Variance: variance}, nil
	default:
		return State{}, fmt.Errorf("%w: unknown strategy %q", errors.ErrConfig, strategy)
	}
}

// Validate checks that the state's accumulators match both the strategy tag
// and the trainable shape of w.
func (s State) Validate(strategy Strategy, w tensor.Weights) error {
	if s.Strategy != strategy {
		return fmt.Errorf("%w: state tagged %q, strategy is %q", errors.ErrConfig, s.Strategy, strategy)
	}

	switch strategy {
	case StrategyAdaptive:
		if err := checkDeltaShape(s.FirstMoment, w); err != nil {
			return err
		}

		return checkDeltaShape(s.SecondMoment, w)
	case StrategyPosterior:
		return checkDeltaShape(tensor.Delta(s.Variance), w)
	default:
		return nil
	}
}

func checkDeltaShape(d tensor.Delta, w tensor.Weights) error {
	if len(d) != len(w.Trainable) {
		return fmt.Errorf("%w: accumulator has %d parameters, weights have %d", errors.ErrConfig, len(d), len(w.Trainable))
	}
	for name, t := range d {
		wt, ok := w.Trainable[name]
		if !ok {
			return fmt.Errorf("%w: accumulator parameter %q not in weights", errors.ErrConfig, name)
		}
		if !t.SameShape(wt) {
			return fmt.Errorf("%w: accumulator shape mismatch for %q", errors.ErrConfig, name)
		}
	}

	return nil
}

// Config selects and parameterizes a strategy.
type Config struct {
	Strategy           Strategy
	ServerLearningRate float64

	// Adaptive knobs.
	Beta1          float64
	Beta2          float64
	Epsilon        float64
	Yogi           bool
	BiasCorrection bool
}

const (
	defBeta1   = 0.9
	defBeta2   = 0.99
	defEpsilon = 1e-3
)

func (c Config) withDefaults() Config {
	if c.ServerLearningRate == 0 {
		c.ServerLearningRate = 1.0
	}
	if c.Beta1 == 0 {
		c.Beta1 = defBeta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = defBeta2
	}
	if c.Epsilon == 0 {
		c.Epsilon = defEpsilon
	}

	return c
}

// Aggregator is the fan-in contract shared by all strategies.
type Aggregator interface {
	Aggregate(current tensor.Weights, outputs []Output, state State) (tensor.Weights, State, error)
}

// New selects the strategy variant at initialize time.
func New(cfg Config) (Aggregator, error) {
	cfg = cfg.withDefaults()

	switch cfg.Strategy {
	case StrategyAvg:
		return &fedAvg{}, nil
	case StrategyAdaptive:
		return &adaptive{cfg: cfg}, nil
	case StrategyPosterior:
		return &posterior{}, nil
	case StrategyPersonalized:
		return &personalized{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", errors.ErrConfig, cfg.Strategy)
	}
}
