package careflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/careflow/pkg/careflow/observability"
)

// ErrNilContext indicates a drive was called with a nil context.
var ErrNilContext = errors.New("context cannot be nil")

// Start runs in from the entry node until it suspends or terminates.
// Collected data already on in (for example a handoff seed) is kept.
//
// Domain failures are reported through the returned instance: a Fail
// outcome yields StatusFailed with a nil error. Failures the engine detects
// itself (panic, undeclared transition, step cap, broken invariant) yield
// StatusFailed together with the typed error. A non-terminal instance with
// a non-nil error means the drive was interrupted (cancellation or a
// checkpoint failure) and nothing past the last persisted step happened.
func (w *Workflow) Start(ctx context.Context, in Instance, opts ...Option) (Instance, error) {
	if ctx == nil {
		return in, ErrNilContext
	}
	if err := w.owns(in); err != nil {
		return in, err
	}
	if err := ctx.Err(); err != nil {
		return in, &CancellationError{NodeID: w.entryPoint, Instance: in, Cause: err}
	}

	cfg := newDriveConfig(opts)
	run := in.Clone()
	run.Workflow = w.name
	run.CurrentNode = w.entryPoint
	run.Status = StatusRunning
	run.PendingQuestion = nil
	run.Output = nil
	run.FailureReason = ""
	if run.MaxIterations == 0 {
		run.MaxIterations = w.maxIterations
	}
	if run.Collected == nil {
		run.Collected = make(map[string]string)
	}
	w.stamp(&run, cfg.now())

	return w.drive(ctx, cfg, run, nil)
}

// Resume re-enters the node that suspended in with answer as its input.
// It is the only way external input reaches a workflow.
func (w *Workflow) Resume(ctx context.Context, in Instance, answer string, opts ...Option) (Instance, error) {
	if ctx == nil {
		return in, ErrNilContext
	}
	if err := w.owns(in); err != nil {
		return in, err
	}
	if in.Status != StatusSuspended {
		return in, fmt.Errorf("%w: status is %s", ErrNotSuspended, in.Status)
	}
	if !w.HasNode(in.CurrentNode) {
		return in, fmt.Errorf("%w: suspended at %q", ErrNodeNotFound, in.CurrentNode)
	}
	if err := ctx.Err(); err != nil {
		return in, &CancellationError{NodeID: in.CurrentNode, Instance: in, Cause: err}
	}

	cfg := newDriveConfig(opts)
	run := in.Clone()
	run.Status = StatusRunning
	run.PendingQuestion = nil
	w.stamp(&run, cfg.now())

	return w.drive(ctx, cfg, run, &answer)
}

// Recover continues an instance that was persisted mid-run, for example
// after the process driving it crashed. The current node is re-run with no
// input.
func (w *Workflow) Recover(ctx context.Context, in Instance, opts ...Option) (Instance, error) {
	if ctx == nil {
		return in, ErrNilContext
	}
	if err := w.owns(in); err != nil {
		return in, err
	}
	if in.Status != StatusRunning {
		return in, fmt.Errorf("%w: status is %s", ErrNotRunning, in.Status)
	}
	if !w.HasNode(in.CurrentNode) {
		return in, fmt.Errorf("%w: running at %q", ErrNodeNotFound, in.CurrentNode)
	}
	if err := ctx.Err(); err != nil {
		return in, &CancellationError{NodeID: in.CurrentNode, Instance: in, Cause: err}
	}

	cfg := newDriveConfig(opts)
	return w.drive(ctx, cfg, in.Clone(), nil)
}

func (w *Workflow) owns(in Instance) error {
	if in.Workflow != "" && in.Workflow != w.name {
		return fmt.Errorf("%w: %s is not %s", ErrWorkflowMismatch, in.Workflow, w.name)
	}
	if in.SessionID == "" {
		return fmt.Errorf("%w: session ID is empty", ErrInvalidInstance)
	}
	return nil
}

// drive steps the instance until it leaves StatusRunning, persisting after
// every step.
func (w *Workflow) drive(ctx context.Context, cfg *driveConfig, in Instance, input *string) (Instance, error) {
	for steps := 1; ; steps++ {
		if err := ctx.Err(); err != nil {
			return in, &CancellationError{NodeID: in.CurrentNode, Instance: in, Cause: err}
		}

		nodeID := in.CurrentNode
		var next Instance
		var runErr error
		if steps > cfg.maxSteps {
			runErr = &MaxStepsError{Max: cfg.maxSteps, LastNodeID: nodeID}
			observability.LogStepError(observability.RunLogger(cfg.logger, in.SessionID, in.Workflow), nodeID, runErr)
			next = failed(in, runErr, cfg.now())
		} else {
			next, runErr = w.step(ctx, cfg, in, input)
			input = nil
		}

		if err := w.persist(ctx, cfg, next, nodeID); err != nil {
			return next, err
		}
		in = next

		if in.Status != StatusRunning {
			return in, runErr
		}
	}
}

// step runs one node and applies its outcome.
func (w *Workflow) step(ctx context.Context, cfg *driveConfig, in Instance, input *string) (Instance, error) {
	nodeID := in.CurrentNode
	spanCtx, span := cfg.spans.StartNodeSpan(ctx, w.name, nodeID)
	sctx := cfg.stepContext(spanCtx, in, nodeID)
	runLog := observability.RunLogger(cfg.logger, in.SessionID, in.Workflow)
	observability.LogStepStart(runLog, nodeID)
	start := time.Now()

	var next Instance
	out, outcome, err := callStep(sctx, w.nodes[nodeID], in.Clone(), input)
	if err == nil {
		next, err = w.apply(sctx, in, out, outcome, cfg.now())
	}

	kind := outcome.Kind.String()
	if err != nil {
		kind = OutcomeFail.String()
		next = failed(in, err, cfg.now())
	}
	duration := time.Since(start)
	cfg.metrics.RecordStep(spanCtx, w.name, nodeID, kind, duration)
	cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogStepError(runLog, nodeID, err)
		return next, err
	}
	observability.LogStepComplete(runLog, nodeID, kind, float64(duration.Milliseconds()))
	if next.PendingQuestion != nil {
		observability.LogSuspend(runLog, nodeID, next.PendingQuestion.Field, next.IterationCount)
	}
	return next, nil
}

// callStep executes a step with panic recovery.
func callStep(ctx *stepContext, s Step, in Instance, input *string) (out Instance, outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				NodeID: ctx.nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	out, outcome = s.Step(ctx, in, input)
	return out, outcome, nil
}

// apply checks the step's result against the invariants and moves the
// instance according to the outcome.
func (w *Workflow) apply(ctx Context, before, after Instance, o Outcome, now time.Time) (Instance, error) {
	nodeID := before.CurrentNode

	after.SessionID = before.SessionID
	after.Workflow = before.Workflow
	after.MaxIterations = before.MaxIterations
	after.StartedAt = before.StartedAt
	after.CurrentNode = nodeID
	after.Status = StatusRunning
	after.PendingQuestion = nil
	after.Output = nil
	after.FailureReason = ""
	after.Path = append(before.Clone().Path, nodeID)
	after.UpdatedAt = now

	if key, bad := appendOnlyViolation(before.Collected, after.Collected); bad {
		return before, fmt.Errorf("node %s: %w: %q", nodeID, ErrCollectedMutated, key)
	}
	if after.IterationCount < before.IterationCount || after.IterationCount > after.MaxIterations {
		return before, fmt.Errorf("node %s: %w: %d -> %d (max %d)",
			nodeID, ErrIterationBudget, before.IterationCount, after.IterationCount, after.MaxIterations)
	}

	switch o.Kind {
	case OutcomeContinue:
		target, err := w.route(ctx, nodeID, after)
		if err != nil {
			return before, err
		}
		return w.moveTo(after, target), nil

	case OutcomeAdvance:
		if !w.allowed[nodeID][o.Next] {
			return before, &TransitionError{From: nodeID, To: o.Next, Err: ErrUndeclaredTransition}
		}
		return w.moveTo(after, o.Next), nil

	case OutcomeSuspend:
		if o.Question.Text == "" {
			return before, fmt.Errorf("node %s suspended without a question", nodeID)
		}
		q := o.Question
		if q.Iteration == 0 {
			q.Iteration = after.IterationCount
		}
		after.Status = StatusSuspended
		after.PendingQuestion = &q
		return after, nil

	case OutcomeComplete:
		return w.complete(after, o.Output), nil

	case OutcomeFail:
		after.Status = StatusFailed
		after.FailureReason = o.Reason
		if after.FailureReason == "" {
			after.FailureReason = "node " + nodeID + " failed"
		}
		return after, nil

	default:
		return before, fmt.Errorf("node %s returned unknown outcome %d", nodeID, o.Kind)
	}
}

// route resolves OutcomeContinue.
func (w *Workflow) route(ctx Context, nodeID string, in Instance) (string, error) {
	if router, ok := w.conditional[nodeID]; ok {
		target := router(ctx, in)
		if target != END && !w.HasNode(target) {
			return "", &TransitionError{From: nodeID, To: target, Err: ErrNodeNotFound}
		}
		return target, nil
	}
	edges := w.edges[nodeID]
	if len(edges) == 0 {
		return "", &TransitionError{From: nodeID, Err: ErrUndeclaredTransition}
	}
	return edges[0], nil
}

func (w *Workflow) moveTo(in Instance, target string) Instance {
	if target == END {
		return w.complete(in, Output{})
	}
	in.CurrentNode = target
	return in
}

func (w *Workflow) complete(in Instance, out Output) Instance {
	out.IncompleteAssessment = out.IncompleteAssessment || in.IncompleteAssessment
	in.IncompleteAssessment = out.IncompleteAssessment
	out.Handoff = mergeHandoff(out.Handoff, w.handoff(in, out))
	in.Status = StatusCompleted
	in.Output = &out
	return in
}

func failed(in Instance, err error, now time.Time) Instance {
	out := in.Clone()
	out.Status = StatusFailed
	out.FailureReason = err.Error()
	out.PendingQuestion = nil
	out.UpdatedAt = now
	return out
}

// persist saves the instance and, once it is terminal, deletes the
// checkpoint. The save always happens first so a stale cursor is detected
// even when the step finished the run.
func (w *Workflow) persist(ctx context.Context, cfg *driveConfig, in Instance, nodeID string) error {
	if cfg.cursor == nil {
		return nil
	}
	key := cfg.cursor.Key().String()

	data, err := EncodeSnapshot(in)
	if err != nil {
		observability.LogCheckpointError(cfg.logger, key, "encode", err)
		return &CheckpointError{NodeID: nodeID, Op: "encode", Err: err}
	}
	if err := cfg.cursor.Save(ctx, data); err != nil {
		observability.LogCheckpointError(cfg.logger, key, "save", err)
		return &CheckpointError{NodeID: nodeID, Op: "save", Err: err}
	}
	observability.LogCheckpoint(cfg.logger, key, cfg.cursor.Version(), len(data))
	cfg.metrics.RecordCheckpoint(ctx, w.name, int64(len(data)))

	if in.Status.Terminal() {
		if err := cfg.cursor.Delete(ctx); err != nil {
			observability.LogCheckpointError(cfg.logger, key, "delete", err)
			return &CheckpointError{NodeID: nodeID, Op: "delete", Err: err}
		}
	}
	return nil
}
