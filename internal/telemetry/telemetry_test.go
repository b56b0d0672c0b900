package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pronobkarmoker/gRPC-microservice/internal/config"
)

func TestNew_DisabledInstallsLocalProvider(t *testing.T) {
	tel, err := New(context.Background(), config.OtelConfig{Enabled: false}, config.AppConfig{Environment: "test"}, "userservice-test")
	require.NoError(t, err)
	require.NotNil(t, tel.TracerProvider)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	ctx, span := tel.Tracer.Start(context.Background(), "op")
	defer span.End()
	assert.Len(t, TraceIDFromContext(ctx), 32, "default sampler records spans locally")
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestShutdown_Nil(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetSpanError_MarksSpanFailed(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	SetSpanError(ctx, errors.New("store closed"))
	SetSpanError(ctx, nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "store closed", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestSetSpanError_NoSpan(t *testing.T) {
	assert.NotPanics(t, func() { SetSpanError(context.Background(), errors.New("x")) })
}
