package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSynthetic(t *testing.T) {
	ctx := context.Background()
	cfg := SyntheticConfig{
		NumClients:       5,
		BatchesPerClient: 3,
		ExamplesPerBatch: 4,
		FeatureDim:       2,
		NoiseStdDev:      0.1,
		ClientSkewStdDev: 0.1,
		Seed:             7,
	}

	reg, clients, err := NewSynthetic(ctx, cfg)
	require.NoError(t, err)
	assert.Len(t, clients, 5)

	listed, err := reg.Clients(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 5)

	for _, id := range clients {
		batches, err := reg.Batches(ctx, id)
		require.NoError(t, err)
		assert.Len(t, batches, 3)
		for _, b := range batches {
			assert.Equal(t, 4, b.Len())
			assert.Len(t, b.Features[0], 2)
		}
	}
}

func TestNewSyntheticDeterministic(t *testing.T) {
	ctx := context.Background()
	cfg := SyntheticConfig{
		NumClients:       3,
		BatchesPerClient: 2,
		ExamplesPerBatch: 4,
		FeatureDim:       2,
		NoiseStdDev:      0.05,
		ClientSkewStdDev: 0.05,
		Seed:             11,
	}

	regA, clientsA, err := NewSynthetic(ctx, cfg)
	require.NoError(t, err)
	regB, clientsB, err := NewSynthetic(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, clientsA, clientsB)

	for _, id := range clientsA {
		ba, err := regA.Batches(ctx, id)
		require.NoError(t, err)
		bb, err := regB.Batches(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ba, bb)
	}
}

func TestNewSyntheticRejectsBadConfig(t *testing.T) {
	_, _, err := NewSynthetic(context.Background(), SyntheticConfig{})
	assert.Error(t, err)
}
