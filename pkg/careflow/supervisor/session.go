package supervisor

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Risk is the assessed urgency of a conversation.
type Risk string

const (
	RiskLow       Risk = "low"
	RiskMedium    Risk = "medium"
	RiskHigh      Risk = "high"
	RiskEmergency Risk = "emergency"
)

// Risks lists every risk level, lowest first.
var Risks = []Risk{RiskLow, RiskMedium, RiskHigh, RiskEmergency}

// ParseRisk converts a label such as "High" to a Risk.
func ParseRisk(s string) (Risk, error) {
	r := Risk(strings.ToLower(strings.TrimSpace(s)))
	if r.rank() < 0 {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

func (r Risk) rank() int {
	return slices.Index(Risks, r)
}

// Exceeds reports whether r is strictly more urgent than other.
func (r Risk) Exceeds(other Risk) bool {
	return r.rank() > other.rank()
}

// Turn is one message in the conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SafetyFlagEmergencyKeywords marks a session in which an emergency keyword
// was seen.
const SafetyFlagEmergencyKeywords = "emergency_keywords_detected"

// Session is the supervisor's record of one conversation. It is only read
// and written between turns.
type Session struct {
	ID     string `json:"id"`
	Intent string `json:"intent,omitempty"`
	Risk   Risk   `json:"risk"`
	// ActiveWorkflow is the workflow the next turn resumes, if any.
	ActiveWorkflow string `json:"active_workflow,omitempty"`
	// SuspendedWorkflows holds workflows preempted by an emergency,
	// most recent last.
	SuspendedWorkflows []string          `json:"suspended_workflows,omitempty"`
	RecentTurns        []Turn            `json:"recent_turns,omitempty"`
	HandoffData        map[string]string `json:"handoff_data,omitempty"`
	// WorkflowHistory names completed workflows in order.
	WorkflowHistory []string  `json:"workflow_history,omitempty"`
	SafetyFlags     []string  `json:"safety_flags,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewSession creates an empty session at low risk.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		Risk:        RiskLow,
		HandoffData: make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RaiseRisk records a fresh risk assessment. While a workflow is active the
// stored risk only goes up; between workflows it takes the new value.
func (s *Session) RaiseRisk(r Risk) {
	if r.rank() < 0 {
		return
	}
	if s.ActiveWorkflow != "" && !r.Exceeds(s.Risk) {
		return
	}
	s.Risk = r
}

// AppendTurn adds a turn and evicts the oldest beyond max. max <= 0 keeps
// everything.
func (s *Session) AppendTurn(t Turn, max int) {
	s.RecentTurns = append(s.RecentTurns, t)
	if max > 0 && len(s.RecentTurns) > max {
		s.RecentTurns = slices.Clone(s.RecentTurns[len(s.RecentTurns)-max:])
	}
}

// LastTurns returns up to n of the most recent turns.
func (s *Session) LastTurns(n int) []Turn {
	if n <= 0 || len(s.RecentTurns) <= n {
		return slices.Clone(s.RecentTurns)
	}
	return slices.Clone(s.RecentTurns[len(s.RecentTurns)-n:])
}

// Preempt parks the active workflow so it can be resumed later.
func (s *Session) Preempt() {
	if s.ActiveWorkflow == "" {
		return
	}
	s.SuspendedWorkflows = append(slices.DeleteFunc(s.SuspendedWorkflows, func(w string) bool {
		return w == s.ActiveWorkflow
	}), s.ActiveWorkflow)
	s.ActiveWorkflow = ""
}

// Restore pops the most recently preempted workflow into ActiveWorkflow.
// It reports the restored name, or "" if nothing was parked.
func (s *Session) Restore() string {
	n := len(s.SuspendedWorkflows)
	if n == 0 {
		return ""
	}
	s.ActiveWorkflow = s.SuspendedWorkflows[n-1]
	s.SuspendedWorkflows = s.SuspendedWorkflows[:n-1]
	return s.ActiveWorkflow
}

// TakeHandoff returns the handoff data and clears it from the session.
func (s *Session) TakeHandoff() map[string]string {
	out := s.HandoffData
	s.HandoffData = make(map[string]string)
	return out
}

// MergeHandoff copies data into the handoff map, overwriting older values.
func (s *Session) MergeHandoff(data map[string]string) {
	if len(data) == 0 {
		return
	}
	if s.HandoffData == nil {
		s.HandoffData = make(map[string]string, len(data))
	}
	maps.Copy(s.HandoffData, data)
}

// Flag records a safety flag once.
func (s *Session) Flag(flag string) {
	if !slices.Contains(s.SafetyFlags, flag) {
		s.SafetyFlags = append(s.SafetyFlags, flag)
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := *s
	out.SuspendedWorkflows = slices.Clone(s.SuspendedWorkflows)
	out.RecentTurns = slices.Clone(s.RecentTurns)
	out.HandoffData = maps.Clone(s.HandoffData)
	out.WorkflowHistory = slices.Clone(s.WorkflowHistory)
	out.SafetyFlags = slices.Clone(s.SafetyFlags)
	return &out
}
