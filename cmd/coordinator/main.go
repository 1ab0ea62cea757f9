package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/fedopt-io/fedopt/coordinator"
	"github.com/fedopt-io/fedopt/coordinator/api"
	"github.com/fedopt-io/fedopt/coordinator/middleware"
	"github.com/fedopt-io/fedopt/dataset"
	"github.com/fedopt-io/fedopt/model"
	"github.com/fedopt-io/fedopt/pkg/checkpoint"
)

const (
	svcName = "coordinator"
	pathEnv = ".env"
)

type envConfig struct {
	LogLevel   string `env:"COORDINATOR_LOG_LEVEL"    envDefault:"info"`
	InstanceID string `env:"COORDINATOR_INSTANCE_ID"`
	HTTPPort   string `env:"COORDINATOR_HTTP_PORT"    envDefault:"7071"`

	Strategy               string        `env:"COORDINATOR_STRATEGY"                  envDefault:"avg"`
	Rounds                 int           `env:"COORDINATOR_ROUNDS"                    envDefault:"50"`
	Seed                   uint64        `env:"COORDINATOR_SEED"                      envDefault:"42"`
	ClientsPerRound        int           `env:"COORDINATOR_CLIENTS_PER_ROUND"         envDefault:"10"`
	ClientEpochsPerRound   int           `env:"COORDINATOR_CLIENT_EPOCHS_PER_ROUND"   envDefault:"1"`
	ClientLearningRate     float64       `env:"COORDINATOR_CLIENT_LEARNING_RATE"      envDefault:"0.05"`
	ServerLearningRate     float64       `env:"COORDINATOR_SERVER_LEARNING_RATE"      envDefault:"1.0"`
	ClientTimeout          time.Duration `env:"COORDINATOR_CLIENT_TIMEOUT"            envDefault:"0"`
	CheckpointEveryNRounds int           `env:"COORDINATOR_CHECKPOINT_EVERY_N_ROUNDS" envDefault:"10"`
	CheckpointDir          string        `env:"COORDINATOR_CHECKPOINT_DIR"            envDefault:"./checkpoints"`

	// Synthetic federation used by the standalone daemon.
	NumClients       int     `env:"COORDINATOR_NUM_CLIENTS"        envDefault:"32"`
	BatchesPerClient int     `env:"COORDINATOR_BATCHES_PER_CLIENT" envDefault:"8"`
	ExamplesPerBatch int     `env:"COORDINATOR_EXAMPLES_PER_BATCH" envDefault:"16"`
	FeatureDim       int     `env:"COORDINATOR_FEATURE_DIM"        envDefault:"8"`
	NoiseStdDev      float64 `env:"COORDINATOR_NOISE_STDDEV"       envDefault:"0.1"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	data, _, err := dataset.NewSynthetic(ctx, dataset.SyntheticConfig{
		NumClients:       cfg.NumClients,
		BatchesPerClient: cfg.BatchesPerClient,
		ExamplesPerBatch: cfg.ExamplesPerBatch,
		FeatureDim:       cfg.FeatureDim,
		NoiseStdDev:      cfg.NoiseStdDev,
		ClientSkewStdDev: cfg.NoiseStdDev,
		Seed:             cfg.Seed,
	})
	if err != nil {
		logger.Error("failed to build synthetic federation", slog.Any("error", err))

		return
	}

	ckpt, err := checkpoint.NewStore(cfg.CheckpointDir, cfg.InstanceID)
	if err != nil {
		logger.Error("failed to open checkpoint store", slog.Any("error", err))

		return
	}

	svc, err := coordinator.NewService(
		model.NewLinear(cfg.FeatureDim),
		data,
		coordinator.NewSlogSink(logger),
		ckpt,
		coordinator.Config{
			RunID:                  cfg.InstanceID,
			Strategy:               cfg.Strategy,
			ClientsPerRound:        cfg.ClientsPerRound,
			ClientEpochsPerRound:   cfg.ClientEpochsPerRound,
			ClientLearningRate:     cfg.ClientLearningRate,
			ServerLearningRate:     cfg.ServerLearningRate,
			ClientTimeout:          cfg.ClientTimeout,
			CheckpointEveryNRounds: cfg.CheckpointEveryNRounds,
		},
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize service", slog.Any("error", err))

		return
	}

	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(noop.NewTracerProvider().Tracer(svcName), svc)
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "fedopt",
		Subsystem: svcName,
		Name:      "request_count",
		Help:      "Number of coordinator operations.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: "fedopt",
		Subsystem: svcName,
		Name:      "request_latency_microseconds",
		Help:      "Coordinator operation latency.",
	}, []string{"method"})
	svc = middleware.Metrics(counter, latency, svc)

	runner := coordinator.NewRunner(svc, data, logger)

	hs := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.MakeHandler(runner, ckpt, logger),
	}

	g.Go(func() error {
		logger.Info("coordinator HTTP server started", slog.String("port", cfg.HTTPPort))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		if err := runner.Run(ctx, cfg.Rounds, cfg.Seed); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("run finished", slog.Uint64("committed_round", runner.State().RoundNum))

		return nil
	})

	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		return hs.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service terminated with error", svcName), slog.Any("error", err))
		os.Exit(1)
	}
}
