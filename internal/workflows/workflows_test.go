package workflows_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/internal/workflows"
	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	"github.com/randalmurphal/careflow/pkg/careflow/config"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/registry"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

func TestDefaultSettings(t *testing.T) {
	s := workflows.DefaultSettings()
	assert.InDelta(t, 0.7, s.Threshold, 1e-9)
	assert.Equal(t, 3, s.MaxIterations[supervisor.WorkflowTriage])
	assert.Equal(t, 5, s.MaxIterations[supervisor.WorkflowQuestionnaire])
	assert.Equal(t, "Delhi", s.DefaultCity)
	assert.Nil(t, s.Directory)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
confidence:
  threshold: 0.5
workflows:
  triage:
    max_iterations: 2
scheduling:
  default_city: Mumbai
  min_rating: 4
  max_doctors: 3
doctors:
  - name: Dr. Asha Rao
    specialties: [Panchakarma, General Ayurveda]
    city: Mumbai
    rating: 4.7
    years_experience: 12
  - name: Dr. Vikram Shah
    specialties: [Kayachikitsa]
    city: Mumbai
    rating: 4.2
`))
	require.NoError(t, err)

	s, err := workflows.SettingsFromConfig(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Threshold, 1e-9)
	assert.Equal(t, 2, s.MaxIterations[supervisor.WorkflowTriage])
	assert.Equal(t, 2, s.MaxIterations[supervisor.WorkflowScheduling])
	assert.Equal(t, "Mumbai", s.DefaultCity)
	assert.InDelta(t, 4.0, s.MinRating, 1e-9)
	assert.Equal(t, 3, s.MaxDoctors)

	dir, ok := s.Directory.(workflows.StaticDirectory)
	require.True(t, ok)
	require.Len(t, dir, 2)
	assert.Equal(t, []string{"Panchakarma", "General Ayurveda"}, dir[0].Specialties)
	assert.Equal(t, 12, dir[0].YearsExperience)
}

func TestSettingsFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"threshold above one", "confidence: {threshold: 1.5}", "confidence.threshold"},
		{"threshold zero", "confidence: {threshold: 0}", "confidence.threshold"},
		{"negative budget", "workflows: {drafting: {max_iterations: -1}}", "workflows.drafting.max_iterations"},
		{"doctor without city", "doctors: [{name: Dr. Nobody}]", "doctors[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromYAML([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = workflows.SettingsFromConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegister(t *testing.T) {
	reg := registry.New[string, *careflow.Workflow]()
	require.NoError(t, workflows.Register(reg, workflows.DefaultSettings()))
	assert.Equal(t, []string{"drafting", "emergency", "questionnaire", "scheduling", "triage"}, reg.Keys())

	// Every default route target is covered.
	_, err := supervisor.New(reg, checkpoint.NewMemoryStore(), supervisor.NewMemorySessionStore(time.Hour))
	require.NoError(t, err)

	err = workflows.Register(reg, workflows.DefaultSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register triage")
}

// conversation answers classifier requests with the current intent and
// everything else from replies.
func conversation(intent *string, replies ...reply) *llm.MockService {
	rest := script(replies...)
	return llm.NewMockService().WithHandler(func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.SchemaHint, `"intent"`):
			return `{"intent": "` + *intent + `"}`, nil
		case strings.Contains(req.SchemaHint, `"risk_level"`):
			return `{"risk_level": "low"}`, nil
		}
		res, err := rest.Infer(context.Background(), req)
		if err != nil {
			return "", err
		}
		return res.Content, nil
	})
}

func TestTriageHandsOffToScheduling(t *testing.T) {
	ctx := context.Background()
	intent := supervisor.IntentSymptom
	svc := conversation(&intent,
		reply{key: "triage_outcome", content: `{"triage_outcome": "needs_doctor"}`},
		reply{key: "specialties", content: `{"specialties": ["Ayurvedic Dermatology"], "explanation": "Skin."}`},
		reply{key: "symptom", content: `{"symptom": "skin rash", "duration": "a week", "severity": null, "location": null}`},
		reply{key: "location", content: `{"location": "arms"}`},
		reply{key: "city", content: `{"city": "Pune", "preferred_date": "Friday"}`},
		reply{key: "", content: "Generated reply."},
	)

	s := workflows.DefaultSettings()
	s.Directory = testDirectory
	reg := registry.New[string, *careflow.Workflow]()
	require.NoError(t, workflows.Register(reg, s))

	store := checkpoint.NewMemoryStore()
	sup, err := supervisor.New(reg, store, supervisor.NewMemorySessionStore(time.Hour),
		supervisor.WithLLM(svc))
	require.NoError(t, err)

	res, err := sup.HandleTurn(ctx, "p1", "I've had a skin rash for a week")
	require.NoError(t, err)
	assert.Equal(t, supervisor.WorkflowTriage, res.Workflow)
	assert.Equal(t, careflow.StatusSuspended, res.Status)
	assert.Equal(t, "severity", res.Question.Field)
	assert.Equal(t, 1, store.Len())

	res, err = sup.HandleTurn(ctx, "p1", "mild")
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	require.Equal(t, careflow.StatusCompleted, res.Status)
	assert.Equal(t, workflows.OutcomeNeedsDoctor, res.Output.Data[workflows.KeyTriageOutcome])
	assert.Equal(t, 0, store.Len())

	intent = supervisor.IntentDoctor
	res, err = sup.HandleTurn(ctx, "p1", "Please book me a doctor in Pune on Friday")
	require.NoError(t, err)
	assert.Equal(t, supervisor.WorkflowScheduling, res.Workflow)
	require.Equal(t, careflow.StatusCompleted, res.Status)
	assert.Equal(t, "Ayurvedic Dermatology", res.Output.Data[workflows.KeySpecialty])
	assert.Equal(t, "2", res.Output.Data["doctor_count"])

	var match string
	for _, call := range svc.Calls() {
		if strings.Contains(call.SchemaHint, `"specialties"`) {
			match = call.UserContent
		}
	}
	assert.Contains(t, match, "skin rash (severity: mild, duration: a week, location: arms)")
	assert.Contains(t, match, "Triage outcome: needs_doctor")
}
