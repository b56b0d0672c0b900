package grpcserver

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
	"github.com/pronobkarmoker/gRPC-microservice/internal/config"
	"github.com/pronobkarmoker/gRPC-microservice/repository"
)

// NewGRPCServer builds a gRPC server with UserService and the standard
// grpc.health.v1 service registered. The returned health server is used to
// flip the serving status during shutdown.
func NewGRPCServer(users repository.UserRepositoryI, log zerolog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(log),
			loggingInterceptor(log),
		),
	)

	userv1.RegisterUserServiceServer(srv, NewServer(users, log))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(userv1.UserService_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

// StartGRPC starts the gRPC server on cfg.GRPC and returns a shutdown function.
// Plaintext only; TLS termination is left to the deployment.
func StartGRPC(cfg *config.Config, users repository.UserRepositoryI, log zerolog.Logger) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Address())
	if err != nil {
		return nil, err
	}

	srv, hs := NewGRPCServer(users, log)

	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	return func(ctx context.Context) error {
		hs.Shutdown()
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
