package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adaptiveFixture(t *testing.T, cfg Config) (Aggregator, State) {
	t.Helper()

	cfg.Strategy = StrategyAdaptive
	agg, err := New(cfg)
	require.NoError(t, err)

	state, err := NewState(StrategyAdaptive, newTestWeights(0, 0))
	require.NoError(t, err)

	return agg, state
}

func TestAdaptiveFirstStepAdam(t *testing.T) {
	w := newTestWeights(0, 0)
	cfg := Config{ServerLearningRate: 0.5, Beta1: 0.9, Beta2: 0.99, Epsilon: 1e-3}
	agg, state := adaptiveFixture(t, cfg)

	g := 0.4
	outputs := []Output{{ClientID: "a", Delta: deltaOf(w, map[string][]float64{"w": {g, 0}}), NumExamples: 1}}

	next, nextState, err := agg.Aggregate(w, outputs, state)
	require.NoError(t, err)

	m := (1 - cfg.Beta1) * g
	v := (1 - cfg.Beta2) * g * g
	u := cfg.ServerLearningRate * m / (math.Sqrt(v) + cfg.Epsilon)

	assert.InDelta(t, u, next.Trainable["w"].Data[0], 1e-15)
	assert.InDelta(t, m, nextState.FirstMoment["w"].Data[0], 1e-15)
	assert.InDelta(t, v, nextState.SecondMoment["w"].Data[0], 1e-15)
	assert.Equal(t, uint64(1), nextState.Step)
}

func TestAdaptiveFirstStepBiasCorrected(t *testing.T) {
	w := newTestWeights(0, 0)
	cfg := Config{ServerLearningRate: 1, Beta1: 0.9, Beta2: 0.99, Epsilon: 1e-3, BiasCorrection: true}
	agg, state := adaptiveFixture(t, cfg)

	g := 0.4
	outputs := []Output{{ClientID: "a", Delta: deltaOf(w, map[string][]float64{"w": {g, 0}}), NumExamples: 1}}

	next, _, err := agg.Aggregate(w, outputs, state)
	require.NoError(t, err)

	// After one bias-corrected step m_hat = g and v_hat = g^2, so the
	// update is lr * g / (|g| + eps) regardless of the betas.
	u := g / (math.Abs(g) + cfg.Epsilon)
	assert.InDelta(t, u, next.Trainable["w"].Data[0], 1e-12)
}

func TestAdaptiveZeroPseudoGradient(t *testing.T) {
	w := newTestWeights(1, -1)
	cfg := Config{ServerLearningRate: 1, Beta1: 0.9, Beta2: 0.99, Epsilon: 1e-3}
	agg, state := adaptiveFixture(t, cfg)

	// Seed the accumulators with a non-trivial previous step.
	g := 0.4
	seeded := []Output{{ClientID: "a", Delta: deltaOf(w, map[string][]float64{"w": {g, g}}), NumExamples: 1}}
	_, state, err := agg.Aggregate(w, seeded, state)
	require.NoError(t, err)

	zero := []Output{{ClientID: "a", Delta: w.ZeroDelta(), NumExamples: 1}}
	_, next, err := agg.Aggregate(w, zero, state)
	require.NoError(t, err)

	// m decays by exactly beta1, v by exactly beta2.
	assert.Equal(t, cfg.Beta1*state.FirstMoment["w"].Data[0], next.FirstMoment["w"].Data[0])
	assert.Equal(t, cfg.Beta2*state.SecondMoment["w"].Data[0], next.SecondMoment["w"].Data[0])
	assert.Equal(t, state.Step+1, next.Step)
}

func TestAdaptiveZeroGradientFromZeroState(t *testing.T) {
	w := newTestWeights(2, 3)
	agg, state := adaptiveFixture(t, Config{ServerLearningRate: 1})

	outputs := []Output{{ClientID: "a", Delta: w.ZeroDelta(), NumExamples: 1}}

	next, nextState, err := agg.Aggregate(w, outputs, state)
	require.NoError(t, err)

	// Zero state plus zero pseudo-gradient moves nothing.
	assert.True(t, next.Equal(w))
	assert.True(t, nextState.FirstMoment.IsZero())
	assert.True(t, nextState.SecondMoment.IsZero())
}

func TestAdaptiveYogiSecondMoment(t *testing.T) {
	w := newTestWeights(0, 0)
	cfg := Config{ServerLearningRate: 1, Beta1: 0.9, Beta2: 0.99, Epsilon: 1e-3, Yogi: true}
	agg, state := adaptiveFixture(t, cfg)

	g := 0.4
	outputs := []Output{{ClientID: "a", Delta: deltaOf(w, map[string][]float64{"w": {g, 0}}), NumExamples: 1}}

	// From v=0 the Yogi rule adds (1-b2)*g^2, same as Adam's first step.
	_, s1, err := agg.Aggregate(w, outputs, state)
	require.NoError(t, err)
	assert.InDelta(t, (1-cfg.Beta2)*g*g, s1.SecondMoment["w"].Data[0], 1e-15)

	// Once v exceeds g^2 the rule subtracts: additive, not exponential.
	big := State{
		Strategy:     StrategyAdaptive,
		FirstMoment:  w.ZeroDelta(),
		SecondMoment: deltaOf(w, map[string][]float64{"w": {1, 1}}),
		Step:         4,
	}
	_, s2, err := agg.Aggregate(w, outputs, big)
	require.NoError(t, err)
	assert.InDelta(t, 1-(1-cfg.Beta2)*g*g, s2.SecondMoment["w"].Data[0], 1e-15)
}

func TestAdaptiveDoesNotMutateInput(t *testing.T) {
	w := newTestWeights(0, 0)
	agg, state := adaptiveFixture(t, Config{})

	outputs := []Output{{ClientID: "a", Delta: deltaOf(w, map[string][]float64{"w": {1, 1}}), NumExamples: 1}}

	_, _, err := agg.Aggregate(w, outputs, state)
	require.NoError(t, err)

	assert.True(t, state.FirstMoment.IsZero())
	assert.True(t, state.SecondMoment.IsZero())
	assert.Equal(t, uint64(0), state.Step)
	assert.Equal(t, 0.0, w.Trainable["w"].Data[0])
}

func TestAdaptiveRejectsForeignState(t *testing.T) {
	w := newTestWeights(0, 0)
	agg, _ := adaptiveFixture(t, Config{})

	avgState, err := NewState(StrategyAvg, w)
	require.NoError(t, err)

	_, _, err = agg.Aggregate(w, []Output{{ClientID: "a", Delta: w.ZeroDelta(), NumExamples: 1}}, avgState)
	assert.Error(t, err)
}
