package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/coordinator"
	"github.com/fedopt-io/fedopt/pkg/checkpoint"
	"github.com/fedopt-io/fedopt/tensor"
)

type stubBackend struct {
	state   coordinator.ServerState
	last    coordinator.RoundMetrics
	running bool
}

func (s *stubBackend) State() coordinator.ServerState        { return s.state }
func (s *stubBackend) LastMetrics() coordinator.RoundMetrics { return s.last }
func (s *stubBackend) Running() bool                         { return s.running }

func testServer(t *testing.T, ckpt *checkpoint.Store) (*httptest.Server, *stubBackend) {
	t.Helper()

	w := tensor.NewTensor(3)
	backend := &stubBackend{
		state: coordinator.ServerState{
			RunID:    "run-1",
			RoundNum: 7,
			Weights:  tensor.NewWeights(map[string]tensor.Tensor{"w": w}, nil),
			Strategy: aggregator.StrategyAvg,
		},
		last: coordinator.RoundMetrics{
			Round:        6,
			MeanLoss:     0.25,
			Sampled:      4,
			Participants: 3,
			Failures:     1,
		},
		running: true,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(MakeHandler(backend, ckpt, logger))
	t.Cleanup(srv.Close)

	return srv, backend
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func TestGetState(t *testing.T) {
	srv, _ := testServer(t, nil)

	var got stateResponse
	code := getJSON(t, srv.URL+"/state", &got)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, uint64(7), got.Round)
	assert.Equal(t, "avg", got.Strategy)
	assert.Equal(t, 3, got.NumParams)
	assert.True(t, got.Running)
}

func TestGetLastRound(t *testing.T) {
	srv, _ := testServer(t, nil)

	var got coordinator.RoundMetrics
	code := getJSON(t, srv.URL+"/rounds/last", &got)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(6), got.Round)
	assert.Equal(t, 3, got.Participants)
	assert.Equal(t, 0.25, got.MeanLoss)
}

func TestCheckpoints(t *testing.T) {
	store, err := checkpoint.NewStore(t.TempDir(), "run-1")
	require.NoError(t, err)

	weights := tensor.NewWeights(map[string]tensor.Tensor{"w": tensor.NewTensor(2)}, nil)
	state, err := aggregator.NewState(aggregator.StrategyAvg, weights)
	require.NoError(t, err)
	require.NoError(t, store.Save(checkpoint.Record{
		RunID:    "run-1",
		Round:    10,
		Strategy: aggregator.StrategyAvg,
		Weights:  weights,
		OptState: state,
		SavedAt:  time.Now().UTC(),
	}))

	srv, _ := testServer(t, store)

	var list listCheckpointsResponse
	code := getJSON(t, srv.URL+"/checkpoints", &list)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []uint64{10}, list.Rounds)

	var rec checkpointResponse
	code = getJSON(t, srv.URL+"/checkpoints/10", &rec)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, 2, rec.NumParams)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/checkpoints/11", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/checkpoints/abc", nil))
}

func TestCheckpointsDisabled(t *testing.T) {
	srv, _ := testServer(t, nil)

	var list listCheckpointsResponse
	code := getJSON(t, srv.URL+"/checkpoints", &list)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, list.Rounds)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/checkpoints/1", nil))
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, nil)

	var got map[string]string
	code := getJSON(t, srv.URL+"/health", &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", got["status"])
}
