package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fedopt-io/fedopt/coordinator"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Initialize(ctx context.Context) (coordinator.ServerState, error) {
	ctx, span := tm.tracer.Start(ctx, "initialize")
	defer span.End()

	return tm.svc.Initialize(ctx)
}

func (tm *tracing) Advance(ctx context.Context, state coordinator.ServerState, available []string, seed uint64) (coordinator.ServerState, coordinator.RoundMetrics, error) {
	ctx, span := tm.tracer.Start(ctx, "advance", trace.WithAttributes(
		attribute.Int64("round", int64(state.RoundNum)),
		attribute.Int("available", len(available)),
	))
	defer span.End()

	return tm.svc.Advance(ctx, state, available, seed)
}

func (tm *tracing) EvaluatePersonalized(ctx context.Context, state coordinator.ServerState, heldOut []string, adaptationSteps int) (coordinator.PersonalizationReport, error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate-personalized", trace.WithAttributes(
		attribute.Int("held_out", len(heldOut)),
		attribute.Int("adaptation_steps", adaptationSteps),
	))
	defer span.End()

	return tm.svc.EvaluatePersonalized(ctx, state, heldOut, adaptationSteps)
}
