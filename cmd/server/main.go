package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pronobkarmoker/gRPC-microservice/internal/config"
	"github.com/pronobkarmoker/gRPC-microservice/internal/db"
	grpcserver "github.com/pronobkarmoker/gRPC-microservice/internal/grpc"
	"github.com/pronobkarmoker/gRPC-microservice/internal/logging"
	"github.com/pronobkarmoker/gRPC-microservice/internal/metrics"
	"github.com/pronobkarmoker/gRPC-microservice/internal/telemetry"
	"github.com/pronobkarmoker/gRPC-microservice/models"
	"github.com/pronobkarmoker/gRPC-microservice/repository"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "userservice: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log, cfg.App.Environment, os.Stdout).With().Str("component", "grpc-server").Logger()
	log.Info().Msgf("configuration loaded: %v", cfg)

	tel, err := telemetry.New(ctx, cfg.Otel, cfg.App, cfg.Otel.ServiceName)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	users, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	if cfg.Store.Seed {
		n, err := repository.Seed(ctx, users, models.SampleUsers())
		if err != nil {
			return fmt.Errorf("seed store: %w", err)
		}
		log.Info().Int("inserted", n).Msg("sample users seeded")
	}
	if n, err := users.Count(ctx); err == nil {
		metrics.SetStoreRecords(n)
	}

	shutdown, err := grpcserver.StartGRPC(cfg, users, log)
	if err != nil {
		return fmt.Errorf("start grpc: %w", err)
	}
	log.Info().Str("addr", cfg.GRPC.Address()).Str("store", cfg.Store.Backend).Msg("gRPC server listening")

	stopMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		stopMetrics, err = metrics.Start(cfg.Metrics.Address(), cfg.Metrics.Path, log)
		if err != nil {
			_ = shutdown(context.Background())
			return fmt.Errorf("start metrics listener: %w", err)
		}
		log.Info().Str("addr", cfg.Metrics.Address()).Str("path", cfg.Metrics.Path).Msg("metrics listening")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return shutdown(shutdownCtx) })
	g.Go(func() error { return stopMetrics(shutdownCtx) })
	g.Go(func() error { return tel.Shutdown(shutdownCtx) })
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}

// openStore builds the configured record store and a function releasing it.
func openStore(cfg config.StoreConfig) (repository.UserRepositoryI, func() error, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		d, err := db.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewUserRepository(d), d.Close, nil
	default:
		return repository.NewMemoryUserRepository(), func() error { return nil }, nil
	}
}

