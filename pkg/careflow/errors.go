package careflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoName indicates NewGraph was given an empty workflow name.
	ErrNoName = errors.New("workflow name not set")

	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")
)

// Sentinel errors for driving an instance.
var (
	// ErrNotSuspended indicates Resume was called on an instance that is
	// not waiting for an answer.
	ErrNotSuspended = errors.New("instance is not suspended")

	// ErrNotRunning indicates Recover was called on an instance that is not
	// mid-run.
	ErrNotRunning = errors.New("instance is not running")

	// ErrWorkflowMismatch indicates an instance belongs to another workflow.
	ErrWorkflowMismatch = errors.New("instance belongs to a different workflow")

	// ErrUndeclaredTransition indicates a step advanced to a node its
	// outgoing edges do not allow.
	ErrUndeclaredTransition = errors.New("undeclared transition")

	// ErrMaxSteps indicates a single drive exceeded its step cap.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrIterationBudget indicates a step pushed IterationCount past
	// MaxIterations.
	ErrIterationBudget = errors.New("iteration count exceeds budget")

	// ErrCollectedMutated indicates a step changed or removed a collected
	// value.
	ErrCollectedMutated = errors.New("collected data is append-only")

	// ErrInvalidInstance indicates an instance violates its invariants.
	ErrInvalidInstance = errors.New("invalid instance")

	// ErrSnapshotFormat indicates a snapshot with an unknown format tag.
	ErrSnapshotFormat = errors.New("unknown snapshot format")
)

// CheckpointError wraps errors from persisting an instance.
type CheckpointError struct {
	// NodeID is the node whose result was being saved.
	NodeID string
	// Op is the operation that failed ("encode", "save", "delete").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// TransitionError reports an outcome the graph does not permit.
type TransitionError struct {
	// From is the node that produced the outcome.
	From string
	// To is the requested target.
	To string
	// Err is ErrUndeclaredTransition or ErrNodeNotFound.
	Err error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %q: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from step execution.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError is returned when ctx is done before a step runs.
// Instance holds the last persisted state, which is still resumable.
type CancellationError struct {
	// NodeID is the node that was about to execute.
	NodeID string
	// Instance is the state at cancellation.
	Instance Instance
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// MaxStepsError reports a drive that ran too many steps without
// suspending or terminating.
type MaxStepsError struct {
	// Max is the configured step cap.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrMaxSteps for errors.Is support.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}
