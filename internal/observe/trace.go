package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for every span this module emits.
const tracerName = "github.com/echolalia-dev/echolalia"

// Tracer returns the module tracer, backed by the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span named after the operation, e.g. "exchange.generate"
// for a provider hop or "HTTP GET /ws" for a request. The caller must End
// the returned span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the active trace ID, or "" when ctx carries no
// span. One lesson turn produces a single trace across transcription,
// grading, and synthesis, so the trace ID doubles as the correlation
// identifier in logs and the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger enriched with the trace and span IDs
// from ctx, so provider-level warnings land next to the turn that caused
// them. Without an active span the default logger is returned as-is.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
