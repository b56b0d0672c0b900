// Package proxy is the HTTP/JSON adapter in front of UserService. Every REST
// call becomes exactly one RPC; the RPC response is reshaped into the
// {success, data, message, error_code} envelope with a matching HTTP status.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
	"github.com/pronobkarmoker/gRPC-microservice/internal/config"
	"github.com/pronobkarmoker/gRPC-microservice/internal/metrics"
)

// Dial opens a lazily connecting client connection to the gRPC service.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
}

// NewRouter wires middleware and the REST routes onto a gin engine.
func NewRouter(cfg *config.Config, client userv1.UserServiceClient, log zerolog.Logger) *gin.Engine {
	devErrors := cfg.IsDevelopment()
	h := NewHandler(client, cfg.Proxy.CallTimeout, log, devErrors)

	r := gin.New()
	// X-Forwarded-For is only honoured from configured proxies, so clients
	// cannot pick their own rate-limit key.
	if err := r.SetTrustedProxies(cfg.Proxy.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("invalid trusted proxies; trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		recovery(log, devErrors),
		requestID(),
		securityHeaders(),
		accessLog(log),
		otelgin.Middleware(cfg.Otel.ServiceName),
	)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     cfg.CORS.AllowedHeaders,
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}
	if cfg.RateLimit.Enabled {
		r.Use(rateLimit(newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/users")
	api.GET("", h.ListUsers)
	api.GET("/:id", h.GetUser)
	api.POST("", h.CreateUser)
	api.PUT("/:id", h.UpdateUser)
	api.DELETE("/:id", h.DeleteUser)

	r.NoRoute(NotFound)
	return r
}

// Start serves handler on cfg.HTTP and returns a shutdown function that
// drains in-flight requests until ctx expires.
func Start(cfg *config.Config, handler http.Handler, log zerolog.Logger) (func(context.Context) error, error) {
	lis, err := net.Listen("tcp", cfg.HTTP.Address())
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http serve")
		}
	}()

	return srv.Shutdown, nil
}
