package aggregator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/tensor"
)

// fedAvg is plain federated averaging: the new weights are the current
// weights plus the example-count-weighted mean of client deltas. Optimizer
// state is passed through untouched.
type fedAvg struct{}

func (f *fedAvg) Aggregate(current tensor.Weights, outputs []Output, state State) (tensor.Weights, State, error) {
	mean, err := weightedMeanDelta(current, outputs)
	if err != nil {
		return tensor.Weights{}, State{}, err
	}

	next, err := current.ApplyDelta(mean)
	if err != nil {
		return tensor.Weights{}, State{}, err
	}

	return next, state, nil
}

// weightedMeanDelta computes sum(delta_i * n_i) / sum(n_i) over the outputs.
// Outputs are reduced in client ID order so the result is bit-identical
// under any permutation of the input. A single output reproduces its delta
// exactly.
func weightedMeanDelta(current tensor.Weights, outputs []Output) (tensor.Delta, error) {
	if len(outputs) == 0 {
		return nil, errors.ErrAggregation
	}

	var total uint64
	for _, o := range outputs {
		if o.NumExamples == 0 {
			return nil, fmt.Errorf("%w: client %s reported zero examples", errors.ErrAggregation, o.ClientID)
		}
		total += o.NumExamples
	}

	if len(outputs) == 1 {
		return outputs[0].Delta.Clone(), nil
	}

	sorted := sortOutputs(outputs)

	mean := current.ZeroDelta()
	den := float64(total)
	for _, o := range sorted {
		if err := mean.AXPY(float64(o.NumExamples)/den, o.Delta); err != nil {
			return nil, fmt.Errorf("client %s: %w", o.ClientID, err)
		}
	}

	return mean, nil
}

// sortOutputs returns the outputs ordered by client ID without touching the
// caller's slice.
func sortOutputs(outputs []Output) []Output {
	sorted := slices.Clone(outputs)
	slices.SortFunc(sorted, func(a, b Output) int {
		return strings.Compare(a.ClientID, b.ClientID)
	})

	return sorted
}
