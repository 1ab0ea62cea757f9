package fedopt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	content := `
[coordinator]
strategy = "adaptive"
clients_per_round = 8
client_epochs_per_round = 2
client_learning_rate = 0.05
server_learning_rate = 0.1
client_timeout_seconds = 30
checkpoint_every_n_rounds = 5
checkpoint_dir = "/tmp/ckpt"
rounds = 100
seed = 7

[clients]
adaptation_steps = 3
holdout_fraction = 0.25
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "adaptive", cfg.Coordinator.Strategy)
	assert.Equal(t, 8, cfg.Coordinator.ClientsPerRound)
	assert.Equal(t, 2, cfg.Coordinator.ClientEpochsPerRound)
	assert.Equal(t, 0.05, cfg.Coordinator.ClientLearningRate)
	assert.Equal(t, 0.1, cfg.Coordinator.ServerLearningRate)
	assert.Equal(t, 30, cfg.Coordinator.ClientTimeoutSeconds)
	assert.Equal(t, 5, cfg.Coordinator.CheckpointEveryNRounds)
	assert.Equal(t, 100, cfg.Coordinator.Rounds)
	assert.Equal(t, uint64(7), cfg.Coordinator.Seed)
	assert.Equal(t, 3, cfg.Clients.AdaptationSteps)
	assert.Equal(t, 0.25, cfg.Clients.HoldoutFraction)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[coordinator\nstrategy ="), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
