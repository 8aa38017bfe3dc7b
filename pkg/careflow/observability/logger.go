// Package observability provides structured logging, metrics, and tracing
// for turns, workflow steps, checkpoints, and degradations.
//
// Logging uses log/slog. Metrics and tracing use OpenTelemetry against the
// global providers. All features have no-op implementations.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds session, workflow and node fields to a logger.
func EnrichLogger(logger *slog.Logger, sessionID, workflow, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return RunLogger(logger, sessionID, workflow).With(slog.String("node_id", nodeID))
}

// RunLogger adds session and workflow fields to a logger. The step helpers
// below take it and add node_id themselves.
func RunLogger(logger *slog.Logger, sessionID, workflow string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("workflow", workflow),
	)
}

// LogTurnStart logs the start of a conversation turn.
func LogTurnStart(logger *slog.Logger, sessionID string, resuming bool) {
	if logger == nil {
		return
	}
	logger.Info("turn starting",
		slog.String("session_id", sessionID),
		slog.Bool("resuming", resuming),
	)
}

// LogTurnComplete logs a finished turn.
func LogTurnComplete(logger *slog.Logger, sessionID, workflow, status string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("turn completed",
		slog.String("session_id", sessionID),
		slog.String("workflow", workflow),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTurnError logs a failed turn.
func LogTurnError(logger *slog.Logger, sessionID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("turn failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRouted logs the routing decision for a new workflow.
func LogRouted(logger *slog.Logger, intent, risk, workflow string) {
	if logger == nil {
		return
	}
	logger.Info("routed",
		slog.String("intent", intent),
		slog.String("risk", risk),
		slog.String("workflow", workflow),
	)
}

// LogStepStart logs node execution start.
func LogStepStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting", slog.String("node_id", nodeID))
}

// LogStepComplete logs a node's outcome.
func LogStepComplete(logger *slog.Logger, nodeID, outcome string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("step completed",
		slog.String("node_id", nodeID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStepError logs a node failure.
func LogStepError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("step failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogSuspend logs that a workflow paused for input.
func LogSuspend(logger *slog.Logger, nodeID, field string, iteration int) {
	if logger == nil {
		return
	}
	logger.Info("workflow suspended",
		slog.String("node_id", nodeID),
		slog.String("field", field),
		slog.Int("iteration", iteration),
	)
}

// LogDegraded logs a fallback taken after a dependency failed.
func LogDegraded(logger *slog.Logger, kind, component, fallback string, err error) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("kind", kind),
		slog.String("component", component),
		slog.String("fallback", fallback),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.Warn("degraded", attrs...)
}

// LogCheckpoint logs a checkpoint write.
func LogCheckpoint(logger *slog.Logger, key string, version int64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("checkpoint", key),
		slog.Int64("version", version),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, key, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("checkpoint", key),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
