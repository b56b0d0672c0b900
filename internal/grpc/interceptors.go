package grpcserver

import (
	"context"
	"path"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
	"github.com/pronobkarmoker/gRPC-microservice/internal/metrics"
	"github.com/pronobkarmoker/gRPC-microservice/internal/telemetry"
)

// recoveryInterceptor converts a handler panic into codes.Internal.
func recoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("method", info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// loggingInterceptor logs and measures every unary call.
func loggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		method := path.Base(info.FullMethod)
		metrics.RecordRPC(method, code.String(), elapsed)

		ev := log.Debug()
		if code == codes.Internal || code == codes.Unknown {
			ev = log.Error().Err(err)
			telemetry.SetSpanError(ctx, err)
		}
		ev = ev.Str("method", method).Str("code", code.String()).Dur("duration", elapsed)
		if id := requestID(ctx); id != "" {
			ev = ev.Str("request_id", id)
		}
		if traceID := telemetry.TraceIDFromContext(ctx); traceID != "" {
			ev = ev.Str("trace_id", traceID)
		}
		ev.Msg("rpc")
		return resp, err
	}
}

func requestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(userv1.RequestIDMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}
