package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func Test_InjectExtract(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "test")
	defer span.End()

	tc := Inject(ctx)
	require.NotEmpty(t, tc.Keys())

	remote := trace.SpanContextFromContext(Extract(context.Background(), tc))
	require.True(t, remote.IsRemote())
	require.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
	require.Equal(t, span.SpanContext().SpanID(), remote.SpanID())
}

func Test_Inject_NoSpan(t *testing.T) {
	require.Empty(t, Inject(context.Background()).Keys())
}
