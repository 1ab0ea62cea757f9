package api

import (
	"time"

	"github.com/fedopt-io/fedopt/coordinator"
)

type stateResponse struct {
	RunID     string `json:"run_id"`
	Round     uint64 `json:"round"`
	Strategy  string `json:"strategy"`
	NumParams int    `json:"num_params"`
	Running   bool   `json:"running"`
}

type metricsResponse struct {
	coordinator.RoundMetrics
}

type listCheckpointsResponse struct {
	Rounds []uint64 `json:"rounds"`
}

type checkpointResponse struct {
	RunID     string    `json:"run_id"`
	Round     uint64    `json:"round"`
	Strategy  string    `json:"strategy"`
	NumParams int       `json:"num_params"`
	SavedAt   time.Time `json:"saved_at"`
}
