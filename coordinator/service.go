// Package coordinator implements the round orchestrator: the state machine
// that samples clients, fans out the client update process, fans in through
// the selected aggregation strategy, and commits the next server state.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/0x6flab/namegenerator"
	"github.com/google/uuid"

	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/client"
	"github.com/fedopt-io/fedopt/dataset"
	"github.com/fedopt-io/fedopt/model"
	"github.com/fedopt-io/fedopt/pkg/checkpoint"
	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/pkg/sampling"
)

var namegen = namegenerator.NewGenerator()

type Service interface {
	// Initialize builds the starting server state for the configured
	// strategy.
	Initialize(ctx context.Context) (ServerState, error)

	// Advance runs one round: sample, fan out, fan in, aggregate. On any
	// round-level failure the input state is returned unchanged.
	Advance(ctx context.Context, state ServerState, available []string, seed uint64) (ServerState, RoundMetrics, error)

	// EvaluatePersonalized scores the shared initialization on held-out
	// clients after a bounded number of adaptation steps each.
	EvaluatePersonalized(ctx context.Context, state ServerState, heldOut []string, adaptationSteps int) (PersonalizationReport, error)
}

type service struct {
	spec   model.Spec
	data   dataset.Store
	agg    aggregator.Aggregator
	sink   MetricsSink
	ckpt   *checkpoint.Store
	cfg    Config
	logger *slog.Logger

	strategy aggregator.Strategy
}

// NewService wires the engine. An unknown strategy fails here with
// ErrConfig before any state is created. The checkpoint store may be nil to
// disable checkpointing.
func NewService(spec model.Spec, data dataset.Store, sink MetricsSink, ckpt *checkpoint.Store, cfg Config, logger *slog.Logger) (Service, error) {
	cfg = cfg.withDefaults()

	strategy, err := aggregator.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	agg, err := aggregator.New(aggregator.Config{
		Strategy:           strategy,
		ServerLearningRate: cfg.ServerLearningRate,
		Beta1:              cfg.Beta1,
		Beta2:              cfg.Beta2,
		Epsilon:            cfg.Epsilon,
		Yogi:               cfg.Yogi,
		BiasCorrection:     cfg.BiasCorrection,
	})
	if err != nil {
		return nil, err
	}

	return &service{
		spec:     spec,
		data:     data,
		agg:      agg,
		sink:     sink,
		ckpt:     ckpt,
		cfg:      cfg,
		logger:   logger,
		strategy: strategy,
	}, nil
}

func (svc *service) Initialize(_ context.Context) (ServerState, error) {
	weights := svc.spec.InitialWeights()

	optState, err := aggregator.NewState(svc.strategy, weights)
	if err != nil {
		return ServerState{}, err
	}
	if err := optState.Validate(svc.strategy, weights); err != nil {
		return ServerState{}, err
	}

	runID := svc.cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-%s", namegen.Generate(), uuid.NewString())
	}

	return ServerState{
		RunID:    runID,
		RoundNum: 0,
		Weights:  weights,
		OptState: optState,
		Strategy: svc.strategy,
	}, nil
}

// result is one client's fan-out outcome.
type result struct {
	clientID string
	out      aggregator.Output
	err      error
}

func (svc *service) Advance(ctx context.Context, state ServerState, available []string, seed uint64) (ServerState, RoundMetrics, error) {
	if err := ctx.Err(); err != nil {
		return state, RoundMetrics{}, err
	}
	if err := state.OptState.Validate(svc.strategy, state.Weights); err != nil {
		return state, RoundMetrics{}, err
	}

	sampled := sampling.Sample(available, svc.cfg.ClientsPerRound, seed, state.RoundNum)
	if len(sampled) == 0 {
		return state, RoundMetrics{}, fmt.Errorf("%w: empty client pool", errors.ErrAggregation)
	}

	results := svc.fanOut(ctx, state, sampled)

	outputs := make([]aggregator.Output, 0, len(results))
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			svc.logger.Warn("client excluded from round",
				slog.Uint64("round", state.RoundNum),
				slog.String("client", r.clientID),
				slog.Any("error", r.err))

			continue
		}
		outputs = append(outputs, r.out)
	}

	if len(outputs) == 0 {
		return state, RoundMetrics{}, fmt.Errorf("%w: all %d sampled clients failed in round %d", errors.ErrAggregation, len(sampled), state.RoundNum)
	}

	// Deterministic single-threaded reduction over the survivors.
	slices.SortFunc(outputs, func(a, b aggregator.Output) int {
		return strings.Compare(a.ClientID, b.ClientID)
	})

	weights, optState, err := svc.agg.Aggregate(state.Weights, outputs, state.OptState)
	if err != nil {
		return state, RoundMetrics{}, err
	}

	metrics := buildMetrics(state.RoundNum, len(sampled), outputs, failures, optState)

	if !weights.AllFinite() || math.IsNaN(metrics.MeanLoss) || math.IsInf(metrics.MeanLoss, 0) {
		return state, RoundMetrics{}, fmt.Errorf("%w: round %d produced non-finite model, last good round is %d", errors.ErrDivergence, state.RoundNum, state.RoundNum)
	}

	next := ServerState{
		RunID:    state.RunID,
		RoundNum: state.RoundNum + 1,
		Weights:  weights,
		OptState: optState,
		Strategy: state.Strategy,
	}

	if svc.ckpt != nil && svc.cfg.CheckpointEveryNRounds > 0 && next.RoundNum%uint64(svc.cfg.CheckpointEveryNRounds) == 0 {
		if err := svc.ckpt.Save(checkpoint.Record{
			RunID:    next.RunID,
			Round:    next.RoundNum,
			Strategy: next.Strategy,
			Weights:  next.Weights,
			OptState: next.OptState,
		}); err != nil {
			// A failed checkpoint does not un-commit the round.
			svc.logger.Error("checkpoint failed",
				slog.Uint64("round", next.RoundNum),
				slog.Any("error", err))
		}
	}

	if svc.sink != nil {
		if err := svc.sink.Record(ctx, metrics); err != nil {
			svc.logger.Warn("metrics sink failed", slog.Any("error", err))
		}
	}

	return next, metrics, nil
}

// fanOut runs the client update process for every sampled client in
// parallel, each over an isolated copy of the broadcast weights, and blocks
// until the full sampled set has reported.
func (svc *service) fanOut(ctx context.Context, state ServerState, sampled []string) []result {
	clientCfg := client.Config{
		Strategy:        svc.strategy,
		Epochs:          svc.cfg.ClientEpochsPerRound,
		LearningRate:    svc.cfg.ClientLearningRate,
		AdaptationSteps: svc.cfg.AdaptationSteps,
		HoldoutFraction: svc.cfg.HoldoutFraction,
	}

	results := make(chan result, len(sampled))
	var wg sync.WaitGroup

	for _, clientID := range sampled {
		wg.Add(1)
		go func(clientID string) {
			defer wg.Done()

			cctx := ctx
			if svc.cfg.ClientTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, svc.cfg.ClientTimeout)
				defer cancel()
			}

			batches, err := svc.data.Batches(cctx, clientID)
			if err != nil {
				results <- result{clientID: clientID, err: fmt.Errorf("%w: %s: %s", errors.ErrClient, clientID, err)}

				return
			}

			out, err := client.Run(cctx, clientID, svc.spec, state.Weights.Clone(), batches, clientCfg)
			results <- result{clientID: clientID, out: out, err: err}
		}(clientID)
	}

	wg.Wait()
	close(results)

	collected := make([]result, 0, len(sampled))
	for r := range results {
		collected = append(collected, r)
	}

	return collected
}

func buildMetrics(round uint64, sampled int, outputs []aggregator.Output, failures int, optState aggregator.State) RoundMetrics {
	m := RoundMetrics{
		Round:        round,
		Sampled:      sampled,
		Participants: len(outputs),
		Failures:     failures,
		ClientLosses: make(map[string]float64, len(outputs)),
		Diagnostics:  make(map[string]float64),
	}

	var lossSum float64
	for _, o := range outputs {
		m.TotalExamples += o.NumExamples
		loss := o.Metrics["loss"]
		m.ClientLosses[o.ClientID] = loss
		lossSum += loss * float64(o.NumExamples)
	}
	if m.TotalExamples > 0 {
		m.MeanLoss = lossSum / float64(m.TotalExamples)
	}

	switch optState.Strategy {
	case aggregator.StrategyAdaptive:
		m.Diagnostics["opt_step"] = float64(optState.Step)
	case aggregator.StrategyPosterior:
		var sum float64
		var n int
		for _, t := range optState.Variance {
			for _, v := range t.Data {
				sum += v
				n++
			}
		}
		if n > 0 {
			m.Diagnostics["mean_variance"] = sum / float64(n)
		}
	}

	return m
}
