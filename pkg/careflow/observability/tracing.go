package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartTurnSpan starts the root span of a conversation turn.
	StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one node step.
	StartNodeSpan(ctx context.Context, workflow, nodeID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager using the global OTel tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{tracer: otel.Tracer("careflow")}
}

// NewSpanManagerWithProvider returns a SpanManager using the given provider.
func NewSpanManagerWithProvider(tp trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: tp.Tracer("careflow")}
}

func (m *otelSpanManager) StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "careflow.turn",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, workflow, nodeID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "careflow.node."+nodeID,
		trace.WithAttributes(
			attribute.String("workflow.name", workflow),
			attribute.String("node.id", nodeID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
