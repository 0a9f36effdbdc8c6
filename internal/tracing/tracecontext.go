package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Context carries a serialized span context across process boundaries
type Context map[string]string

func (tc Context) Get(key string) string {
	return tc[key]
}

func (tc Context) Set(key string, value string) {
	tc[key] = value
}

func (tc Context) Keys() []string {
	r := make([]string, 0, len(tc))

	for k := range tc {
		r = append(r, k)
	}

	return r
}

var _ propagation.TextMapCarrier = Context{}

var propagator propagation.TraceContext

// Inject serializes the span context of the current span
func Inject(ctx context.Context) Context {
	carrier := make(Context)
	propagator.Inject(trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx)), carrier)
	return carrier
}

// Extract returns a context with the remote span context stored in tc
func Extract(ctx context.Context, tc Context) context.Context {
	return propagator.Extract(ctx, tc)
}
