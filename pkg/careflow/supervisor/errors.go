package supervisor

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrEmptyMessage indicates a turn with no text.
	ErrEmptyMessage = errors.New("empty message")

	// ErrUnknownWorkflow indicates a routed workflow is not registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")
)

// TurnErrorKind classifies a failed turn.
type TurnErrorKind string

const (
	// KindCheckpointConflict means another turn for the same session wrote
	// the checkpoint first. The caller may retry the turn.
	KindCheckpointConflict TurnErrorKind = "checkpoint_conflict"

	// KindCheckpointUnavailable means the checkpoint could not be written.
	KindCheckpointUnavailable TurnErrorKind = "checkpoint_unavailable"

	// KindSessionUnavailable means the session record could not be saved
	// after the workflow state was persisted.
	KindSessionUnavailable TurnErrorKind = "session_unavailable"
)

// TurnError reports a turn that did not complete. The session is left as
// it was before the turn and the caller may submit the turn again.
type TurnError struct {
	Kind      TurnErrorKind
	SessionID string
	Workflow  string
	Err       error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	return fmt.Sprintf("turn for session %s (%s): %s: %v", e.SessionID, e.Workflow, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *TurnError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a checkpoint conflict turn error.
func IsConflict(err error) bool {
	var te *TurnError
	return errors.As(err, &te) && te.Kind == KindCheckpointConflict
}
