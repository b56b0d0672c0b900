package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
	"github.com/pronobkarmoker/gRPC-microservice/internal/config"
	"github.com/pronobkarmoker/gRPC-microservice/internal/logging"
	"github.com/pronobkarmoker/gRPC-microservice/internal/proxy"
	"github.com/pronobkarmoker/gRPC-microservice/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "userservice-proxy: %v\n", err)
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
	cfg.Otel.ServiceName += "-proxy"

	log := logging.New(cfg.Log, cfg.App.Environment, os.Stdout).With().Str("component", "http-proxy").Logger()
	log.Info().Msgf("configuration loaded: %v", cfg)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	tel, err := telemetry.New(ctx, cfg.Otel, cfg.App, "")
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	conn, err := proxy.Dial(cfg.Proxy.GRPCTarget)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Proxy.GRPCTarget, err)
	}
	defer conn.Close()

	router := proxy.NewRouter(cfg, userv1.NewUserServiceClient(conn), log)
	shutdown, err := proxy.Start(cfg, router, log)
	if err != nil {
		return fmt.Errorf("start http: %w", err)
	}
	log.Info().
		Str("addr", cfg.HTTP.Address()).
		Str("upstream", cfg.Proxy.GRPCTarget).
		Msg("HTTP proxy listening")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return shutdown(shutdownCtx) })
	g.Go(func() error { return tel.Shutdown(shutdownCtx) })
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("proxy stopped")
	return nil
}
