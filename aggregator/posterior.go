package aggregator

import (
	"fmt"

	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/tensor"
)

// posterior combines per-client diagonal-Gaussian posterior approximations
// by precision-weighted averaging, approximating the product of the client
// posteriors. The combined mean becomes the new global weights; the combined
// variance is carried in the optimizer state as the next round's prior.
//
// When every client reports a uniformly zero covariance the clients have
// degenerated to point estimates, and the combination reduces exactly to
// the example-count-weighted mean of plain averaging. That reduction is an
// exact code path, not a numerical limit.
type posterior struct{}

func (p *posterior) Aggregate(current tensor.Weights, outputs []Output, state State) (tensor.Weights, State, error) {
	if err := state.Validate(StrategyPosterior, current); err != nil {
		return tensor.Weights{}, State{}, err
	}
	if len(outputs) == 0 {
		return tensor.Weights{}, State{}, errors.ErrAggregation
	}

	sorted := sortOutputs(outputs)
	for _, o := range sorted {
		if o.Posterior == nil {
			return tensor.Weights{}, State{}, fmt.Errorf("%w: client %s has no posterior payload", errors.ErrInvalidData, o.ClientID)
		}
		if o.NumExamples == 0 {
			return tensor.Weights{}, State{}, fmt.Errorf("%w: client %s reported zero examples", errors.ErrAggregation, o.ClientID)
		}
		if err := checkDeltaShape(tensor.Delta(o.Posterior.Mean), current); err != nil {
			return tensor.Weights{}, State{}, fmt.Errorf("client %s posterior mean: %w", o.ClientID, err)
		}
		if err := checkDeltaShape(tensor.Delta(o.Posterior.Variance), current); err != nil {
			return tensor.Weights{}, State{}, fmt.Errorf("client %s posterior variance: %w", o.ClientID, err)
		}
	}

	next := current.Clone()
	variance := make(map[string]tensor.Tensor, len(current.Trainable))

	for _, name := range current.Names() {
		dim := len(current.Trainable[name].Data)
		combined := tensor.NewTensor(current.Trainable[name].Shape...)
		combinedVar := tensor.NewTensor(current.Trainable[name].Shape...)

		for i := 0; i < dim; i++ {
			var total float64
			degenerate := true
			for _, o := range sorted {
				if v := o.Posterior.Variance[name].Data[i]; v != 0 {
					degenerate = false
				}
				total += float64(o.NumExamples)
			}

			if degenerate {
				// All point estimates: exact weighted mean, zero information
				// about spread.
				var mean float64
				for _, o := range sorted {
					mean += o.Posterior.Mean[name].Data[i] * float64(o.NumExamples) / total
				}
				combined.Data[i] = mean
				combinedVar.Data[i] = 0

				continue
			}

			var precisionSum, weighted float64
			for _, o := range sorted {
				v := o.Posterior.Variance[name].Data[i]
				precision := float64(o.NumExamples) / (v + posteriorFloor)
				precisionSum += precision
				weighted += precision * o.Posterior.Mean[name].Data[i]
			}

			combined.Data[i] = weighted / precisionSum
			combinedVar.Data[i] = 1 / precisionSum
		}

		for i := range combined.Data {
			next.Trainable[name].Data[i] = combined.Data[i]
		}
		variance[name] = combinedVar
	}

	return next, State{Strategy: StrategyPosterior, Variance: variance}, nil
}

// posteriorFloor keeps precisions finite for clients whose variance estimate
// collapsed on a subset of coordinates.
const posteriorFloor = 1e-8
