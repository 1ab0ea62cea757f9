package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fedopt-io/fedopt/dataset"
	pkgerrors "github.com/fedopt-io/fedopt/pkg/errors"
)

// Runner drives a service through a fixed number of rounds and exposes the
// last committed state to observers. Cancellation between rounds stops the
// run with the state at its last fully-committed round; an in-flight round
// either commits or is discarded whole.
type Runner struct {
	svc    Service
	data   dataset.Store
	logger *slog.Logger

	mu      sync.RWMutex
	state   ServerState
	last    RoundMetrics
	running bool
}

func NewRunner(svc Service, data dataset.Store, logger *slog.Logger) *Runner {
	return &Runner{
		svc:    svc,
		data:   data,
		logger: logger,
	}
}

// Run initializes the server state and advances it for the given number of
// rounds. Retryable round failures (ErrAggregation) are logged and the
// round is retried against the next sample; anything else stops the run.
func (r *Runner) Run(ctx context.Context, rounds int, seed uint64) error {
	state, err := r.svc.Initialize(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.state = state
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			r.logger.Info("run cancelled",
				slog.Uint64("committed_round", state.RoundNum))

			return err
		}

		next, metrics, err := r.svc.Advance(ctx, state, r.availableClients(ctx), seed)
		switch {
		case err == nil:
		case errors.Is(err, pkgerrors.ErrAggregation):
			r.logger.Warn("round failed, retrying with next sample",
				slog.Uint64("round", state.RoundNum),
				slog.Any("error", err))

			continue
		default:
			return fmt.Errorf("round %d: %w", state.RoundNum, err)
		}

		state = next

		r.mu.Lock()
		r.state = state
		r.last = metrics
		r.mu.Unlock()
	}

	return nil
}

func (r *Runner) availableClients(ctx context.Context) []string {
	clients, err := r.data.Clients(ctx)
	if err != nil {
		r.logger.Error("failed to list clients", slog.Any("error", err))

		return nil
	}

	return clients
}

// State returns the last committed server state.
func (r *Runner) State() ServerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

// LastMetrics returns the metrics of the last committed round.
func (r *Runner) LastMetrics() RoundMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.last
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.running
}
