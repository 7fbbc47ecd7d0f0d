package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/PabloGalante/mermaidbot/internal/adapters/llm"

// traced runs one provider call inside a completion.generate span and records
// its latency.
func traced[T any](ctx context.Context, provider, model string, call func(context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "completion.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := call(ctx)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
	}

	histogram, herr := otel.Meter(instrumentationName).Float64Histogram(
		"mermaidbot.completion.duration",
		metric.WithDescription("Completion provider latency"),
		metric.WithUnit("ms"),
	)
	if herr == nil {
		histogram.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("llm.provider", provider),
				attribute.String("status", status),
			))
	}
	return out, err
}
