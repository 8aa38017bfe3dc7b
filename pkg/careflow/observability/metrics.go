package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records careflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStep records one node step and its outcome kind.
	RecordStep(ctx context.Context, workflow, nodeID, outcome string, duration time.Duration)

	// RecordTurn records a finished turn and the resulting instance status.
	RecordTurn(ctx context.Context, workflow, status string, duration time.Duration)

	// RecordCheckpoint records a checkpoint write.
	RecordCheckpoint(ctx context.Context, workflow string, sizeBytes int64)

	// RecordDegradation counts a fallback taken by a classifier or node.
	RecordDegradation(ctx context.Context, kind, component string)

	// RecordConflict counts a lost checkpoint version race.
	RecordConflict(ctx context.Context, workflow string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	steps          metric.Int64Counter
	stepLatency    metric.Float64Histogram
	turns          metric.Int64Counter
	turnLatency    metric.Float64Histogram
	checkpointSize metric.Int64Histogram
	degradations   metric.Int64Counter
	conflicts      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("careflow"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	steps, err := meter.Int64Counter("careflow.node.steps",
		metric.WithDescription("Number of workflow node steps"),
	)
	if err != nil {
		return nil, err
	}

	stepLatency, err := meter.Float64Histogram("careflow.node.latency_ms",
		metric.WithDescription("Node step latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	turns, err := meter.Int64Counter("careflow.turns",
		metric.WithDescription("Number of conversation turns handled"),
	)
	if err != nil {
		return nil, err
	}

	turnLatency, err := meter.Float64Histogram("careflow.turn.latency_ms",
		metric.WithDescription("Turn latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("careflow.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	degradations, err := meter.Int64Counter("careflow.degradations",
		metric.WithDescription("Fallbacks taken after a dependency failure"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter("careflow.checkpoint.conflicts",
		metric.WithDescription("Checkpoint writes rejected by a version check"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		steps:          steps,
		stepLatency:    stepLatency,
		turns:          turns,
		turnLatency:    turnLatency,
		checkpointSize: checkpointSize,
		degradations:   degradations,
		conflicts:      conflicts,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. If instrument creation fails, it returns NoopMetrics.
//
// Configure the provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithMeter builds a recorder on a specific meter.
// Tests use it with an SDK ManualReader.
func NewMetricsRecorderWithMeter(meter metric.Meter) (MetricsRecorder, error) {
	return newOtelMetrics(meter)
}

func (m *otelMetrics) RecordStep(ctx context.Context, workflow, nodeID, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("node_id", nodeID),
		attribute.String("outcome", outcome),
	)
	m.steps.Add(ctx, 1, attrs)
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordTurn(ctx context.Context, workflow, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("status", status),
	)
	m.turns.Add(ctx, 1, attrs)
	m.turnLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, workflow string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("workflow", workflow)))
}

func (m *otelMetrics) RecordDegradation(ctx context.Context, kind, component string) {
	m.degradations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("component", component),
	))
}

func (m *otelMetrics) RecordConflict(ctx context.Context, workflow string) {
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
}
