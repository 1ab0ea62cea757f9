package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/fedopt-io/fedopt/model"
	"github.com/fedopt-io/fedopt/pkg/errors"
)

// SyntheticConfig describes a generated federation for demos and tests.
type SyntheticConfig struct {
	NumClients        int
	BatchesPerClient  int
	ExamplesPerBatch  int
	FeatureDim        int
	NoiseStdDev       float64
	ClientSkewStdDev  float64
	Seed              uint64
}

// NewSynthetic builds a registry of clients holding noisy linear data drawn
// around a shared ground-truth weight vector. Each client gets a small
// private offset so the federation is non-IID. Generation is fully
// determined by cfg.Seed.
func NewSynthetic(ctx context.Context, cfg SyntheticConfig) (Registry, []string, error) {
	if cfg.NumClients < 1 || cfg.BatchesPerClient < 1 || cfg.ExamplesPerBatch < 1 || cfg.FeatureDim < 1 {
		return nil, nil, fmt.Errorf("%w: synthetic federation needs at least one client, batch, example and feature", errors.ErrInvalidData)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0))

	truth := make([]float64, cfg.FeatureDim)
	for i := range truth {
		truth[i] = rng.NormFloat64()
	}
	bias := rng.NormFloat64()

	reg := NewInMemoryStore()
	clients := make([]string, 0, cfg.NumClients)

	for c := 0; c < cfg.NumClients; c++ {
		clientID := fmt.Sprintf("client-%03d", c)

		skew := rng.NormFloat64() * cfg.ClientSkewStdDev
		batches := make([]model.Batch, 0, cfg.BatchesPerClient)
		for b := 0; b < cfg.BatchesPerClient; b++ {
			batch := model.Batch{
				Features: make([][]float64, cfg.ExamplesPerBatch),
				Labels:   make([]float64, cfg.ExamplesPerBatch),
			}
			for i := 0; i < cfg.ExamplesPerBatch; i++ {
				x := make([]float64, cfg.FeatureDim)
				var y float64
				for j := range x {
					x[j] = rng.NormFloat64()
					y += truth[j] * x[j]
				}
				y += bias + skew + rng.NormFloat64()*cfg.NoiseStdDev

				batch.Features[i] = x
				batch.Labels[i] = y
			}
			batches = append(batches, batch)
		}

		if err := reg.Register(ctx, clientID, batches); err != nil {
			return nil, nil, err
		}
		clients = append(clients, clientID)
	}

	return reg, clients, nil
}
