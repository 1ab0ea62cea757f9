package sampling

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleDeterministic(t *testing.T) {
	pool := []string{"e", "a", "c", "b", "d"}

	first := Sample(pool, 3, 42, 7)
	second := Sample(pool, 3, 42, 7)

	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
	assert.True(t, slices.IsSorted(first))
}

func TestSampleIgnoresPoolOrder(t *testing.T) {
	a := Sample([]string{"x", "y", "z", "w"}, 2, 1, 1)
	b := Sample([]string{"w", "z", "x", "y"}, 2, 1, 1)

	assert.Equal(t, a, b)
}

func TestSampleVariesByRound(t *testing.T) {
	pool := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		pool = append(pool, string(c))
	}

	var distinct bool
	base := Sample(pool, 5, 42, 0)
	for round := uint64(1); round < 10; round++ {
		if !slices.Equal(base, Sample(pool, 5, 42, round)) {
			distinct = true

			break
		}
	}
	assert.True(t, distinct)
}

func TestSampleWholePool(t *testing.T) {
	pool := []string{"b", "a", "c"}

	tests := []struct {
		name string
		k    int
	}{
		{name: "k zero", k: 0},
		{name: "k negative", k: -1},
		{name: "k equals pool", k: 3},
		{name: "k exceeds pool", k: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sample(pool, tt.k, 1, 1)
			assert.Equal(t, []string{"a", "b", "c"}, got)
		})
	}
}

func TestSampleDoesNotMutatePool(t *testing.T) {
	pool := []string{"c", "a", "b"}
	Sample(pool, 2, 9, 3)

	assert.Equal(t, []string{"c", "a", "b"}, pool)
}

func TestSampleEmptyPool(t *testing.T) {
	assert.Empty(t, Sample(nil, 3, 1, 1))
}
