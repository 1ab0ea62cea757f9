package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedopt-io/fedopt"
	"github.com/fedopt-io/fedopt/coordinator"
	"github.com/fedopt-io/fedopt/dataset"
	"github.com/fedopt-io/fedopt/model"
	"github.com/fedopt-io/fedopt/pkg/checkpoint"
)

var (
	configPath    string
	runID         string
	strategy      string
	rounds        int
	seed          uint64
	featureDim    int
	numClients    int
	checkpointDir string
	evaluate      bool
	logLevel      string
)

type runSummary struct {
	RunID       string                             `json:"run_id"`
	Strategy    string                             `json:"strategy"`
	Rounds      uint64                             `json:"rounds"`
	LastMetrics coordinator.RoundMetrics           `json:"last_metrics"`
	Evaluation  *coordinator.PersonalizationReport `json:"evaluation,omitempty"`
}

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a federation",
		Long:  `Run a federated optimization experiment on a synthetic federation and print the result.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg := fedopt.Config{
				Coordinator: fedopt.CoordinatorConfig{
					Strategy:      strategy,
					Rounds:        rounds,
					Seed:          seed,
					CheckpointDir: checkpointDir,
				},
			}
			if configPath != "" {
				loaded, err := fedopt.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				cfg = *loaded
				if cfg.Coordinator.Rounds == 0 {
					cfg.Coordinator.Rounds = rounds
				}
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}))

			ctx := cmd.Context()

			data, _, err := dataset.NewSynthetic(ctx, dataset.SyntheticConfig{
				NumClients:       numClients,
				BatchesPerClient: 8,
				ExamplesPerBatch: 16,
				FeatureDim:       featureDim,
				NoiseStdDev:      0.1,
				ClientSkewStdDev: 0.1,
				Seed:             cfg.Coordinator.Seed,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			var ckpt *checkpoint.Store
			if cfg.Coordinator.CheckpointDir != "" {
				ckpt, err = checkpoint.NewStore(cfg.Coordinator.CheckpointDir, runID)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			svc, err := coordinator.NewService(
				model.NewLinear(featureDim),
				data,
				coordinator.NewSlogSink(logger),
				ckpt,
				coordinator.Config{
					RunID:                  runID,
					Strategy:               cfg.Coordinator.Strategy,
					ClientsPerRound:        cfg.Coordinator.ClientsPerRound,
					ClientEpochsPerRound:   cfg.Coordinator.ClientEpochsPerRound,
					ClientLearningRate:     cfg.Coordinator.ClientLearningRate,
					ServerLearningRate:     cfg.Coordinator.ServerLearningRate,
					ClientTimeout:          time.Duration(cfg.Coordinator.ClientTimeoutSeconds) * time.Second,
					CheckpointEveryNRounds: cfg.Coordinator.CheckpointEveryNRounds,
					AdaptationSteps:        cfg.Clients.AdaptationSteps,
					HoldoutFraction:        cfg.Clients.HoldoutFraction,
				},
				logger,
			)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			runner := coordinator.NewRunner(svc, data, logger)
			if err := runner.Run(ctx, cfg.Coordinator.Rounds, cfg.Coordinator.Seed); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			state := runner.State()
			summary := runSummary{
				RunID:       state.RunID,
				Strategy:    string(state.Strategy),
				Rounds:      state.RoundNum,
				LastMetrics: runner.LastMetrics(),
			}

			if evaluate {
				clients, err := data.Clients(ctx)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}

				report, err := svc.EvaluatePersonalized(ctx, state, clients, cfg.Clients.AdaptationSteps)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				summary.Evaluation = &report
			}

			logSuccessCmd(*cmd, "Run finished")
			logJSONCmd(*cmd, summary)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (random when empty)")
	cmd.Flags().StringVar(&strategy, "strategy", "avg", "Aggregation strategy (avg|adaptive|posterior|personalized)")
	cmd.Flags().IntVar(&rounds, "rounds", 50, "Number of rounds to run")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Sampling and data generation seed")
	cmd.Flags().IntVar(&featureDim, "dim", 8, "Feature dimension of the synthetic model")
	cmd.Flags().IntVar(&numClients, "clients", 32, "Number of synthetic clients")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "Directory for round checkpoints (disabled when empty)")
	cmd.Flags().BoolVar(&evaluate, "evaluate", false, "Score personalization on all clients after the run")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for round logs on stderr")

	return cmd
}
