package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/fedopt-io/fedopt/coordinator"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Initialize(ctx context.Context) (state coordinator.ServerState, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("strategy", string(state.Strategy)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Initialize failed", args...)

			return
		}
		lm.logger.Info("Initialize completed successfully", args...)
	}(time.Now())

	return lm.svc.Initialize(ctx)
}

func (lm *loggingMiddleware) Advance(ctx context.Context, state coordinator.ServerState, available []string, seed uint64) (next coordinator.ServerState, metrics coordinator.RoundMetrics, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Uint64("num", state.RoundNum),
				slog.Int("available", len(available)),
				slog.Int("participants", metrics.Participants),
				slog.Int("failures", metrics.Failures),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Advance failed", args...)

			return
		}
		lm.logger.Info("Advance completed successfully", args...)
	}(time.Now())

	return lm.svc.Advance(ctx, state, available, seed)
}

func (lm *loggingMiddleware) EvaluatePersonalized(ctx context.Context, state coordinator.ServerState, heldOut []string, adaptationSteps int) (report coordinator.PersonalizationReport, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("held_out", len(heldOut)),
			slog.Int("adaptation_steps", adaptationSteps),
			slog.Int("evaluated", report.Evaluated),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate personalized failed", args...)

			return
		}
		lm.logger.Info("Evaluate personalized completed successfully", args...)
	}(time.Now())

	return lm.svc.EvaluatePersonalized(ctx, state, heldOut, adaptationSteps)
}
