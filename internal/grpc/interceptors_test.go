package grpcserver

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor_SpanStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		failed bool
	}{
		{"ok", nil, false},
		{"business failure", status.Error(codes.NotFound, "missing"), false},
		{"internal", status.Error(codes.Internal, "store closed"), true},
		{"unknown", errors.New("plain error"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
			t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

			ctx, span := tp.Tracer("test").Start(context.Background(), "rpc")
			intercept := loggingInterceptor(zerolog.Nop())
			info := &grpc.UnaryServerInfo{FullMethod: "/userservice.UserService/GetUser"}
			_, err := intercept(ctx, nil, info, func(context.Context, any) (any, error) {
				return nil, tc.err
			})
			span.End()
			assert.Equal(t, tc.err, err)

			ended := rec.Ended()
			require.Len(t, ended, 1)
			if tc.failed {
				assert.Equal(t, otelcodes.Error, ended[0].Status().Code)
				assert.Len(t, ended[0].Events(), 1)
			} else {
				assert.Equal(t, otelcodes.Unset, ended[0].Status().Code)
				assert.Empty(t, ended[0].Events())
			}
		})
	}
}
