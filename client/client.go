// Package client implements the client update process: local optimization of
// a broadcast model on one client's private batches. Each run operates on an
// isolated copy of the broadcast weights and shares no state with other
// clients; the only thing that leaves is the returned Output.
package client

import (
	"context"
	"fmt"
	"math"

	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/dataset"
	"github.com/fedopt-io/fedopt/model"
	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/tensor"
)

// Config carries the client-local optimizer settings for one round.
type Config struct {
	Strategy     aggregator.Strategy
	Epochs       int
	LearningRate float64

	// Personalization only.
	AdaptationSteps int
	HoldoutFraction float64
}

// Run performs one client's local update and returns its round output. The
// returned delta is final-local minus broadcast weights, never the raw
// weights. Malformed or empty data, a non-finite local loss, and context
// expiry all surface as ErrClient so the orchestrator can exclude the client
// without failing the round.
func Run(ctx context.Context, clientID string, spec model.Spec, weights tensor.Weights, batches []model.Batch, cfg Config) (aggregator.Output, error) {
	if len(batches) == 0 || dataset.NumExamples(batches) == 0 {
		return aggregator.Output{}, fmt.Errorf("%w: client %s has no local examples", errors.ErrClient, clientID)
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}

	if cfg.Strategy == aggregator.StrategyPersonalized {
		return runPersonalized(ctx, clientID, spec, weights, batches, cfg)
	}

	local := weights.Clone()

	var tracker *posteriorTracker
	if cfg.Strategy == aggregator.StrategyPosterior {
		tracker = newPosteriorTracker(weights)
	}

	var lossSum float64
	var steps uint64

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for _, batch := range batches {
			next, loss, err := step(ctx, clientID, spec, local, batch, cfg.LearningRate)
			if err != nil {
				return aggregator.Output{}, err
			}

			local = next
			lossSum += loss
			steps++

			if tracker != nil {
				tracker.observe(local)
			}
		}
	}

	delta, err := local.Sub(weights)
	if err != nil {
		return aggregator.Output{}, fmt.Errorf("%w: client %s: %s", errors.ErrClient, clientID, err)
	}

	out := aggregator.Output{
		ClientID:    clientID,
		Delta:       delta,
		NumExamples: dataset.NumExamples(batches),
		Metrics: map[string]float64{
			"loss": lossSum / float64(steps),
		},
	}
	if tracker != nil {
		out.Posterior = tracker.posterior()
	}

	return out, nil
}

// runPersonalized performs the two-phase adapt/evaluate update: a bounded
// number of adaptation steps on the adaptation split, then scoring on the
// held-out split. The adapted delta doubles as the meta-gradient sample.
func runPersonalized(ctx context.Context, clientID string, spec model.Spec, weights tensor.Weights, batches []model.Batch, cfg Config) (aggregator.Output, error) {
	adapt, holdout := dataset.Split(batches, cfg.HoldoutFraction)
	if len(adapt) == 0 || len(holdout) == 0 {
		return aggregator.Output{}, fmt.Errorf("%w: client %s has too little data for an adaptation split", errors.ErrClient, clientID)
	}

	adaptSteps := cfg.AdaptationSteps
	if adaptSteps <= 0 {
		adaptSteps = len(adapt) * cfg.Epochs
	}

	local := weights.Clone()
	var lossSum float64
	for s := 0; s < adaptSteps; s++ {
		batch := adapt[s%len(adapt)]

		next, loss, err := step(ctx, clientID, spec, local, batch, cfg.LearningRate)
		if err != nil {
			return aggregator.Output{}, err
		}

		local = next
		lossSum += loss
	}

	holdoutLoss, err := Score(ctx, spec, local, holdout)
	if err != nil {
		return aggregator.Output{}, fmt.Errorf("%w: client %s: %s", errors.ErrClient, clientID, err)
	}

	delta, err := local.Sub(weights)
	if err != nil {
		return aggregator.Output{}, fmt.Errorf("%w: client %s: %s", errors.ErrClient, clientID, err)
	}

	return aggregator.Output{
		ClientID:    clientID,
		Delta:       delta,
		NumExamples: dataset.NumExamples(adapt),
		Metrics: map[string]float64{
			"loss":         lossSum / float64(adaptSteps),
			"holdout_loss": holdoutLoss,
		},
		Adaptation: &aggregator.Adaptation{
			Delta:           delta.Clone(),
			HoldoutLoss:     holdoutLoss,
			HoldoutExamples: dataset.NumExamples(holdout),
		},
	}, nil
}

// step runs one gradient step and returns the updated weights.
func step(ctx context.Context, clientID string, spec model.Spec, local tensor.Weights, batch model.Batch, lr float64) (tensor.Weights, float64, error) {
	if err := ctx.Err(); err != nil {
		return tensor.Weights{}, 0, fmt.Errorf("%w: client %s: %s", errors.ErrClient, clientID, err)
	}

	loss, grads, err := spec.Forward(local, batch)
	if err != nil {
		return tensor.Weights{}, 0, fmt.Errorf("%w: client %s: %s", errors.ErrClient, clientID, err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) || !grads.AllFinite() {
		return tensor.Weights{}, 0, fmt.Errorf("%w: client %s diverged locally", errors.ErrClient, clientID)
	}

	next, err := local.ApplyDelta(grads.Scale(-lr))
	if err != nil {
		return tensor.Weights{}, 0, fmt.Errorf("%w: client %s: %s", errors.ErrClient, clientID, err)
	}

	return next, loss, nil
}

// Score computes the example-weighted mean loss of w over the batches
// without updating any weights.
func Score(ctx context.Context, spec model.Spec, w tensor.Weights, batches []model.Batch) (float64, error) {
	var lossSum float64
	var examples uint64

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		loss, _, err := spec.Forward(w, batch)
		if err != nil {
			return 0, err
		}

		lossSum += loss * float64(batch.Len())
		examples += uint64(batch.Len())
	}

	if examples == 0 {
		return 0, errors.ErrClient
	}

	return lossSum / float64(examples), nil
}
