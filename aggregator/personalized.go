package aggregator

import (
	"fmt"

	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/tensor"
)

// personalized updates the shared initialization with a first-order
// meta-gradient: each client's post-adaptation delta, weighted by its
// held-out example count, averaged across clients and applied with the
// server learning rate. The meta-objective is a model that becomes good
// after a few local adaptation steps, so no accumulator state is carried
// beyond the shared weights themselves.
type personalized struct {
	cfg Config
}

func (p *personalized) Aggregate(current tensor.Weights, outputs []Output, state State) (tensor.Weights, State, error) {
	if err := state.Validate(StrategyPersonalized, current); err != nil {
		return tensor.Weights{}, State{}, err
	}
	if len(outputs) == 0 {
		return tensor.Weights{}, State{}, errors.ErrAggregation
	}

	sorted := sortOutputs(outputs)

	var total uint64
	for _, o := range sorted {
		if o.Adaptation == nil {
			return tensor.Weights{}, State{}, fmt.Errorf("%w: client %s has no adaptation payload", errors.ErrInvalidData, o.ClientID)
		}
		if o.Adaptation.HoldoutExamples == 0 {
			return tensor.Weights{}, State{}, fmt.Errorf("%w: client %s has no held-out examples", errors.ErrAggregation, o.ClientID)
		}
		total += o.Adaptation.HoldoutExamples
	}

	meta := current.ZeroDelta()
	den := float64(total)
	for _, o := range sorted {
		if err := meta.AXPY(float64(o.Adaptation.HoldoutExamples)/den, o.Adaptation.Delta); err != nil {
			return tensor.Weights{}, State{}, fmt.Errorf("client %s: %w", o.ClientID, err)
		}
	}

	next, err := current.ApplyDelta(meta.Scale(p.cfg.ServerLearningRate))
	if err != nil {
		return tensor.Weights{}, State{}, err
	}

	return next, State{Strategy: StrategyPersonalized}, nil
}
