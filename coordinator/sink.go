package coordinator

import (
	"context"
	"log/slog"
)

// MetricsSink receives each committed round's metrics. Implementations must
// tolerate being called from the hot path; failures are logged by the
// orchestrator and never fail a round.
type MetricsSink interface {
	Record(ctx context.Context, metrics RoundMetrics) error
}

type slogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink that logs one structured line per round.
func NewSlogSink(logger *slog.Logger) MetricsSink {
	return &slogSink{logger: logger}
}

func (s *slogSink) Record(ctx context.Context, m RoundMetrics) error {
	s.logger.InfoContext(ctx, "round completed",
		slog.Uint64("round", m.Round),
		slog.Float64("mean_loss", m.MeanLoss),
		slog.Int("sampled", m.Sampled),
		slog.Int("participants", m.Participants),
		slog.Int("failures", m.Failures),
		slog.Uint64("total_examples", m.TotalExamples))

	return nil
}
