package supervisor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

func TestParseRisk(t *testing.T) {
	for _, in := range []string{"low", " High ", "EMERGENCY", "medium"} {
		r, err := supervisor.ParseRisk(in)
		require.NoError(t, err, in)
		assert.Contains(t, supervisor.Risks, r)
	}
	_, err := supervisor.ParseRisk("critical")
	assert.Error(t, err)
	_, err = supervisor.ParseRisk("")
	assert.Error(t, err)
}

func TestRisk_Exceeds(t *testing.T) {
	assert.True(t, supervisor.RiskEmergency.Exceeds(supervisor.RiskHigh))
	assert.True(t, supervisor.RiskMedium.Exceeds(supervisor.RiskLow))
	assert.False(t, supervisor.RiskLow.Exceeds(supervisor.RiskLow))
	assert.False(t, supervisor.RiskLow.Exceeds(supervisor.RiskHigh))
}

func TestSession_RaiseRisk(t *testing.T) {
	s := supervisor.NewSession("s1", testEpoch)
	assert.Equal(t, supervisor.RiskLow, s.Risk)

	s.ActiveWorkflow = supervisor.WorkflowTriage
	s.RaiseRisk(supervisor.RiskHigh)
	assert.Equal(t, supervisor.RiskHigh, s.Risk)
	s.RaiseRisk(supervisor.RiskLow)
	assert.Equal(t, supervisor.RiskHigh, s.Risk, "risk never drops mid-workflow")

	s.ActiveWorkflow = ""
	s.RaiseRisk(supervisor.RiskLow)
	assert.Equal(t, supervisor.RiskLow, s.Risk)

	s.RaiseRisk("bogus")
	assert.Equal(t, supervisor.RiskLow, s.Risk)
}

func TestSession_AppendTurn(t *testing.T) {
	s := supervisor.NewSession("s1", testEpoch)
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		s.AppendTurn(supervisor.Turn{Role: supervisor.RoleUser, Content: c}, 3)
	}
	require.Len(t, s.RecentTurns, 3)
	assert.Equal(t, "c", s.RecentTurns[0].Content)

	last := s.LastTurns(2)
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].Content)
	last[0].Content = "changed"
	assert.Equal(t, "d", s.RecentTurns[1].Content)

	assert.Len(t, s.LastTurns(0), 3)

	s.AppendTurn(supervisor.Turn{Content: "f"}, 0)
	assert.Len(t, s.RecentTurns, 4)
}

func TestSession_PreemptAndRestore(t *testing.T) {
	s := supervisor.NewSession("s1", testEpoch)
	s.Preempt()
	assert.Empty(t, s.SuspendedWorkflows)
	assert.Equal(t, "", s.Restore())

	s.ActiveWorkflow = supervisor.WorkflowQuestionnaire
	s.Preempt()
	s.ActiveWorkflow = supervisor.WorkflowTriage
	s.Preempt()
	assert.Empty(t, s.ActiveWorkflow)
	assert.Equal(t, []string{supervisor.WorkflowQuestionnaire, supervisor.WorkflowTriage}, s.SuspendedWorkflows)

	// Parking a workflow twice keeps one entry, moved to the top.
	s.ActiveWorkflow = supervisor.WorkflowQuestionnaire
	s.Preempt()
	assert.Equal(t, []string{supervisor.WorkflowTriage, supervisor.WorkflowQuestionnaire}, s.SuspendedWorkflows)

	assert.Equal(t, supervisor.WorkflowQuestionnaire, s.Restore())
	assert.Equal(t, supervisor.WorkflowQuestionnaire, s.ActiveWorkflow)
	assert.Equal(t, []string{supervisor.WorkflowTriage}, s.SuspendedWorkflows)
}

func TestSession_Handoff(t *testing.T) {
	s := supervisor.NewSession("s1", testEpoch)
	s.MergeHandoff(nil)
	s.MergeHandoff(map[string]string{"symptoms": "fever", "city": "Pune"})
	s.MergeHandoff(map[string]string{"city": "Delhi"})

	got := s.TakeHandoff()
	assert.Equal(t, map[string]string{"symptoms": "fever", "city": "Delhi"}, got)
	assert.Empty(t, s.HandoffData)
	assert.NotNil(t, s.HandoffData)
}

func TestSession_FlagOnce(t *testing.T) {
	s := supervisor.NewSession("s1", testEpoch)
	s.Flag(supervisor.SafetyFlagEmergencyKeywords)
	s.Flag(supervisor.SafetyFlagEmergencyKeywords)
	assert.Equal(t, []string{supervisor.SafetyFlagEmergencyKeywords}, s.SafetyFlags)
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := supervisor.NewSession("s1", testEpoch)
	s.AppendTurn(supervisor.Turn{Content: "hi"}, 0)
	s.MergeHandoff(map[string]string{"k": "v"})
	s.WorkflowHistory = []string{"triage"}
	s.SuspendedWorkflows = []string{"questionnaire"}

	c := s.Clone()
	c.RecentTurns[0].Content = "changed"
	c.HandoffData["k"] = "changed"
	c.WorkflowHistory[0] = "changed"
	c.SuspendedWorkflows[0] = "changed"

	assert.Equal(t, "hi", s.RecentTurns[0].Content)
	assert.Equal(t, "v", s.HandoffData["k"])
	assert.Equal(t, "triage", s.WorkflowHistory[0])
	assert.Equal(t, "questionnaire", s.SuspendedWorkflows[0])
}
