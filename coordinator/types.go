package coordinator

import (
	"time"

	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/tensor"
)

// ServerState is the coordinator-held state between rounds. Weights and
// optimizer state are always replaced together: a failed round returns the
// input state untouched, so the pair is never observed half-updated.
type ServerState struct {
	RunID    string              `cbor:"run_id"`
	RoundNum uint64              `cbor:"round_num"`
	Weights  tensor.Weights      `cbor:"weights"`
	OptState aggregator.State    `cbor:"opt_state"`
	Strategy aggregator.Strategy `cbor:"strategy"`
}

// RoundMetrics are the aggregate statistics of one round. They are emitted
// to the metrics sink and never retained in server state.
type RoundMetrics struct {
	Round         uint64             `json:"round"`
	MeanLoss      float64            `json:"mean_loss"`
	Sampled       int                `json:"sampled"`
	Participants  int                `json:"participants"`
	Failures      int                `json:"failures"`
	TotalExamples uint64             `json:"total_examples"`
	ClientLosses  map[string]float64 `json:"client_losses,omitempty"`
	Diagnostics   map[string]float64 `json:"diagnostics,omitempty"`
}

// PersonalizationReport is the evaluation harness output: the distribution
// of post-adaptation held-out scores across evaluated clients, not a single
// aggregate.
type PersonalizationReport struct {
	Scores    map[string]float64 `json:"scores"`
	Evaluated int                `json:"evaluated"`
	Failures  int                `json:"failures"`
	Mean      float64            `json:"mean"`
	Median    float64            `json:"median"`
	P10       float64            `json:"p10"`
	P90       float64            `json:"p90"`
}

// Config is the recognized configuration surface of the engine.
type Config struct {
	// RunID names the run. Left empty, a random ID is generated; setting it
	// makes initialize-plus-advance sequences fully reproducible.
	RunID string

	Strategy               string
	ClientsPerRound        int
	ClientEpochsPerRound   int
	ClientLearningRate     float64
	ServerLearningRate     float64
	ClientTimeout          time.Duration
	CheckpointEveryNRounds int

	// Personalization.
	AdaptationSteps int
	HoldoutFraction float64

	// Adaptive strategy knobs.
	Beta1          float64
	Beta2          float64
	Epsilon        float64
	Yogi           bool
	BiasCorrection bool
}

func (c Config) withDefaults() Config {
	if c.ClientsPerRound <= 0 {
		c.ClientsPerRound = 10
	}
	if c.ClientEpochsPerRound <= 0 {
		c.ClientEpochsPerRound = 1
	}
	if c.ClientLearningRate == 0 {
		c.ClientLearningRate = 0.01
	}
	if c.ServerLearningRate == 0 {
		c.ServerLearningRate = 1.0
	}
	if c.HoldoutFraction == 0 {
		c.HoldoutFraction = 0.2
	}

	return c
}
