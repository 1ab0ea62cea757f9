package api

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"

	"github.com/fedopt-io/fedopt/coordinator"
	"github.com/fedopt-io/fedopt/pkg/checkpoint"
	pkgerrors "github.com/fedopt-io/fedopt/pkg/errors"
)

// Backend is the read-only view the status API serves from.
type Backend interface {
	State() coordinator.ServerState
	LastMetrics() coordinator.RoundMetrics
	Running() bool
}

func getStateEndpoint(backend Backend) endpoint.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		state := backend.State()

		return stateResponse{
			RunID:     state.RunID,
			Round:     state.RoundNum,
			Strategy:  string(state.Strategy),
			NumParams: state.Weights.NumParams(),
			Running:   backend.Running(),
		}, nil
	}
}

func lastMetricsEndpoint(backend Backend) endpoint.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		return metricsResponse{RoundMetrics: backend.LastMetrics()}, nil
	}
}

func listCheckpointsEndpoint(ckpt *checkpoint.Store) endpoint.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		if ckpt == nil {
			return listCheckpointsResponse{Rounds: []uint64{}}, nil
		}

		rounds, err := ckpt.Rounds()
		if err != nil {
			return nil, err
		}

		return listCheckpointsResponse{Rounds: rounds}, nil
	}
}

func getCheckpointEndpoint(ckpt *checkpoint.Store) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req, ok := request.(checkpointReq)
		if !ok {
			return nil, pkgerrors.ErrInvalidData
		}

		if ckpt == nil {
			return nil, pkgerrors.ErrNotFound
		}

		rec, err := ckpt.Load(req.round)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrNotFound) {
				return nil, pkgerrors.ErrNotFound
			}

			return nil, err
		}

		return checkpointResponse{
			RunID:     rec.RunID,
			Round:     rec.Round,
			Strategy:  string(rec.Strategy),
			NumParams: rec.Weights.NumParams(),
			SavedAt:   rec.SavedAt,
		}, nil
	}
}
