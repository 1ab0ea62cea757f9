package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/fedopt-io/fedopt/coordinator"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Initialize(ctx context.Context) (coordinator.ServerState, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "initialize").Add(1)
		mm.latency.With("method", "initialize").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Initialize(ctx)
}

func (mm *metricsMiddleware) Advance(ctx context.Context, state coordinator.ServerState, available []string, seed uint64) (coordinator.ServerState, coordinator.RoundMetrics, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "advance").Add(1)
		mm.latency.With("method", "advance").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Advance(ctx, state, available, seed)
}

func (mm *metricsMiddleware) EvaluatePersonalized(ctx context.Context, state coordinator.ServerState, heldOut []string, adaptationSteps int) (coordinator.PersonalizationReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evaluate-personalized").Add(1)
		mm.latency.With("method", "evaluate-personalized").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.EvaluatePersonalized(ctx, state, heldOut, adaptationSteps)
}
