package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedopt-io/fedopt/model"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		batches  int
		fraction float64
		adapt    int
		holdout  int
	}{
		{name: "empty", batches: 0, fraction: 0.2, adapt: 0, holdout: 0},
		{name: "single batch stays adapt", batches: 1, fraction: 0.5, adapt: 1, holdout: 0},
		{name: "fraction rounds down but keeps one", batches: 2, fraction: 0.1, adapt: 1, holdout: 1},
		{name: "standard split", batches: 10, fraction: 0.2, adapt: 8, holdout: 2},
		{name: "fraction one keeps one adapt", batches: 5, fraction: 1, adapt: 1, holdout: 4},
		{name: "negative fraction clamps", batches: 4, fraction: -1, adapt: 3, holdout: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := make([]model.Batch, tt.batches)
			for i := range batches {
				batches[i] = batchOf(i + 1)
			}

			adapt, holdout := Split(batches, tt.fraction)
			assert.Len(t, adapt, tt.adapt)
			assert.Len(t, holdout, tt.holdout)
		})
	}
}

func TestSplitDeterministic(t *testing.T) {
	batches := []model.Batch{batchOf(1), batchOf(2), batchOf(3), batchOf(4)}

	a1, h1 := Split(batches, 0.25)
	a2, h2 := Split(batches, 0.25)

	assert.Equal(t, a1, a2)
	assert.Equal(t, h1, h2)
	// Positional: the tail is held out.
	assert.Equal(t, 4, h1[0].Len())
}

func TestNumExamples(t *testing.T) {
	assert.Equal(t, uint64(0), NumExamples(nil))
	assert.Equal(t, uint64(7), NumExamples([]model.Batch{batchOf(3), batchOf(4)}))
}
