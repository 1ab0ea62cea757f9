package fedopt

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Clients     ClientsConfig     `toml:"clients"`
}

type CoordinatorConfig struct {
	Strategy               string  `toml:"strategy"`
	ClientsPerRound        int     `toml:"clients_per_round"`
	ClientEpochsPerRound   int     `toml:"client_epochs_per_round"`
	ClientLearningRate     float64 `toml:"client_learning_rate"`
	ServerLearningRate     float64 `toml:"server_learning_rate"`
	ClientTimeoutSeconds   int     `toml:"client_timeout_seconds"`
	CheckpointEveryNRounds int     `toml:"checkpoint_every_n_rounds"`
	CheckpointDir          string  `toml:"checkpoint_dir"`
	Rounds                 int     `toml:"rounds"`
	Seed                   uint64  `toml:"seed"`
}

type ClientsConfig struct {
	AdaptationSteps int     `toml:"adaptation_steps"`
	HoldoutFraction float64 `toml:"holdout_fraction"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
