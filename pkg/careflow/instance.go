package careflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Question is what a suspended instance is waiting on.
type Question struct {
	Text      string `json:"text"`
	Field     string `json:"field,omitempty"`
	Iteration int    `json:"iteration"`
}

// Output is the terminal result of a completed instance.
type Output struct {
	Text                 string            `json:"text"`
	Data                 map[string]string `json:"data,omitempty"`
	Handoff              map[string]string `json:"handoff,omitempty"`
	IncompleteAssessment bool              `json:"incomplete_assessment,omitempty"`
}

// Instance is the full state of one workflow run for one session. Steps
// receive it by value and return the transformed copy.
type Instance struct {
	SessionID            string            `json:"session_id"`
	Workflow             string            `json:"workflow"`
	CurrentNode          string            `json:"current_node"`
	Status               Status            `json:"status"`
	IterationCount       int               `json:"iteration_count"`
	MaxIterations        int               `json:"max_iterations"`
	Collected            map[string]string `json:"collected"`
	PendingQuestion      *Question         `json:"pending_question,omitempty"`
	Output               *Output           `json:"output,omitempty"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	IncompleteAssessment bool              `json:"incomplete_assessment,omitempty"`
	Path                 []string          `json:"path,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Has reports whether field has a non-empty collected value.
func (in Instance) Has(field string) bool {
	return in.Collected[field] != ""
}

// Value returns the collected value for field, or "".
func (in Instance) Value(field string) string {
	return in.Collected[field]
}

// Collect records value under field unless the field is already set or
// value is empty. It reports whether the value was stored.
func (in *Instance) Collect(field, value string) bool {
	if value == "" || in.Has(field) {
		return false
	}
	if in.Collected == nil {
		in.Collected = make(map[string]string)
	}
	in.Collected[field] = value
	return true
}

// Clone returns a deep copy.
func (in Instance) Clone() Instance {
	out := in
	out.Collected = maps.Clone(in.Collected)
	out.Path = slices.Clone(in.Path)
	if in.PendingQuestion != nil {
		q := *in.PendingQuestion
		out.PendingQuestion = &q
	}
	if in.Output != nil {
		o := *in.Output
		o.Data = maps.Clone(in.Output.Data)
		o.Handoff = maps.Clone(in.Output.Handoff)
		out.Output = &o
	}
	return out
}

// Validate checks the instance invariants.
func (in Instance) Validate() error {
	var errs []error
	if in.SessionID == "" {
		errs = append(errs, errors.New("session ID is empty"))
	}
	if in.Workflow == "" {
		errs = append(errs, errors.New("workflow is empty"))
	}
	switch in.Status {
	case StatusRunning, StatusSuspended, StatusCompleted, StatusFailed:
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", in.Status))
	}
	if (in.Status == StatusSuspended) != (in.PendingQuestion != nil) {
		errs = append(errs, fmt.Errorf("status %s with pending question = %t", in.Status, in.PendingQuestion != nil))
	}
	if in.IterationCount < 0 || in.IterationCount > in.MaxIterations {
		errs = append(errs, fmt.Errorf("iteration count %d outside [0, %d]", in.IterationCount, in.MaxIterations))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInstance, errors.Join(errs...))
	}
	return nil
}

// appendOnlyViolation returns the first key of before that after changed
// or dropped.
func appendOnlyViolation(before, after map[string]string) (string, bool) {
	for _, k := range slices.Sorted(maps.Keys(before)) {
		if v, ok := after[k]; !ok || v != before[k] {
			return k, true
		}
	}
	return "", false
}
