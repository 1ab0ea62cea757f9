package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/client"
	"github.com/fedopt-io/fedopt/pkg/errors"
)

// evalParallelism bounds concurrent held-out client evaluations.
const evalParallelism = 8

func (svc *service) EvaluatePersonalized(ctx context.Context, state ServerState, heldOut []string, adaptationSteps int) (PersonalizationReport, error) {
	if len(heldOut) == 0 {
		return PersonalizationReport{}, fmt.Errorf("%w: no held-out clients", errors.ErrAggregation)
	}

	clientCfg := client.Config{
		Strategy:        aggregator.StrategyPersonalized,
		Epochs:          svc.cfg.ClientEpochsPerRound,
		LearningRate:    svc.cfg.ClientLearningRate,
		AdaptationSteps: adaptationSteps,
		HoldoutFraction: svc.cfg.HoldoutFraction,
	}

	var mu sync.Mutex
	scores := make(map[string]float64, len(heldOut))
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evalParallelism)

	for _, clientID := range heldOut {
		g.Go(func() error {
			batches, err := svc.data.Batches(gctx, clientID)
			if err == nil {
				var out aggregator.Output
				out, err = client.Run(gctx, clientID, svc.spec, state.Weights.Clone(), batches, clientCfg)
				if err == nil {
					mu.Lock()
					scores[clientID] = out.Adaptation.HoldoutLoss
					mu.Unlock()

					return nil
				}
			}

			mu.Lock()
			failures++
			mu.Unlock()
			svc.logger.Warn("held-out client evaluation failed",
				slog.String("client", clientID),
				slog.Any("error", err))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return PersonalizationReport{}, err
	}

	if len(scores) == 0 {
		return PersonalizationReport{}, fmt.Errorf("%w: all %d held-out clients failed", errors.ErrAggregation, len(heldOut))
	}

	return summarize(scores, failures), nil
}

func summarize(scores map[string]float64, failures int) PersonalizationReport {
	values := make([]float64, 0, len(scores))
	for _, v := range scores {
		values = append(values, v)
	}
	slices.Sort(values)

	return PersonalizationReport{
		Scores:    scores,
		Evaluated: len(scores),
		Failures:  failures,
		Mean:      stat.Mean(values, nil),
		Median:    stat.Quantile(0.5, stat.Empirical, values, nil),
		P10:       stat.Quantile(0.1, stat.Empirical, values, nil),
		P90:       stat.Quantile(0.9, stat.Empirical, values, nil),
	}
}
