package workflows

import (
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/confidence"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// Handoff keys published by triage.
const (
	KeySymptoms      = "symptoms"
	KeyTriageOutcome = "triage_outcome"
)

// Triage outcomes.
const (
	OutcomeSelfCare    = "self_care"
	OutcomeNeedsDoctor = "needs_doctor"
	OutcomeUrgent      = "urgent"
)

var triageOutcomes = []string{OutcomeSelfCare, OutcomeNeedsDoctor, OutcomeUrgent}

// TriageFields are the symptom details triage collects.
var TriageFields = []confidence.Field{
	{Name: "symptom", Question: "Can you tell me more about your symptoms?"},
	{Name: "duration", Question: "When did these symptoms start?"},
	{Name: "severity", Question: "How severe are your symptoms? (mild, moderate, or severe)"},
	{Name: "location", Question: "Where exactly are you experiencing these symptoms?"},
}

const triageApology = "I apologize, but I'm having trouble generating a response. " +
	"Please consult with a healthcare provider about your symptoms."

// Triage builds the symptom triage workflow:
// intake -> gather (follow-up loop) -> assess -> respond.
func Triage(s Settings) (*careflow.Workflow, error) {
	loop := &confidence.Loop{
		Name:      "gather",
		Fields:    TriageFields,
		Threshold: s.Threshold,
		Next:      "assess",
		Extract:   &confidence.TextExtractor{Topic: "symptom"},
	}
	g := careflow.NewGraph(supervisor.WorkflowTriage).
		SetMaxIterations(s.maxIterations(supervisor.WorkflowTriage)).
		SetHandoffKeys(KeySymptoms, KeyTriageOutcome).
		AddStep("intake", intake("symptom", TriageFields, func(in careflow.Instance) map[string]string {
			return map[string]string{"symptom": truncate(in.Value(supervisor.SeedMessage), 100)}
		})).
		AddEdge("intake", "gather").
		SetEntry("intake")

	wf, err := loop.Attach(g).
		AddStep("assess", assessTriage).
		AddStep("respond", respondTriage).
		AddEdge("assess", "respond").
		AddEdge("respond", careflow.END).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("triage: %w", err)
	}
	return wf, nil
}

// symptomSummary renders the collected details on one line, e.g.
// "headache (severity: moderate, duration: 3 days)".
func symptomSummary(in careflow.Instance) string {
	name := in.Value("symptom")
	if name == "" {
		name = truncate(in.Value(supervisor.SeedMessage), 100)
	}
	var details []string
	for _, f := range []string{"severity", "duration", "location"} {
		if v := in.Value(f); v != "" {
			details = append(details, f+": "+v)
		}
	}
	if len(details) == 0 {
		return name
	}
	return name + " (" + strings.Join(details, ", ") + ")"
}

const assessPrompt = `You are a medical triage assistant. Decide how the patient should proceed.
- self_care: minor, can be managed at home
- needs_doctor: should be seen by a doctor
- urgent: needs prompt medical attention today`

// fieldAssessment holds the outcome inside the instance. The published
// keys travel in Output.Data, so a stale handoff seed never wins.
const fieldAssessment = "assessment"

func assessTriage(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	user := "Symptoms: " + symptomSummary(in) + "\nRisk level: " + in.Value(supervisor.SeedRisk)
	res, err := ask(ctx,
		llm.Request{
			SystemPrompt: assessPrompt,
			UserContent:  user,
			SchemaHint:   `{"triage_outcome": "self_care|needs_doctor|urgent", "reasoning": "string"}`,
			Temperature:  0.3,
		},
		llm.Request{
			SystemPrompt: `Reply {"triage_outcome": "self_care"}, {"triage_outcome": "needs_doctor"}, or {"triage_outcome": "urgent"}.`,
			UserContent:  user,
			SchemaHint:   `{"triage_outcome": "string"}`,
		},
	)
	outcome := ""
	if err == nil {
		outcome = strings.ToLower(strings.TrimSpace(res.String(KeyTriageOutcome)))
		if !slices.Contains(triageOutcomes, outcome) {
			err = &cferrors.ContentError{Input: res.Content, Message: fmt.Sprintf("unknown triage outcome %q", outcome)}
		}
	}
	if err != nil {
		ctx.Degraded(cferrors.KindNodeDegraded, OutcomeNeedsDoctor, err)
		outcome = OutcomeNeedsDoctor
	}
	in.Collect(fieldAssessment, outcome)
	return in, careflow.Continue()
}

const triageResponsePrompt = `You are a medical AI assistant providing brief, preliminary guidance.

Respond in a SHORT and CLEAR manner:
- Use 3-5 short bullet points or a short paragraph
- Briefly summarize the symptoms
- Give general self-care advice (e.g., rest, hydration)
- Say when medical attention should be considered
- Be empathetic and reassuring
- Include a brief disclaimer that this is not a diagnosis

Do NOT provide a diagnosis. Keep the response concise.`

func respondTriage(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	summary, outcome := symptomSummary(in), in.Value(fieldAssessment)
	var b strings.Builder
	fmt.Fprintf(&b, "Symptoms:\n- %s\n", summary)
	fmt.Fprintf(&b, "Assessment: %s\n", outcome)
	if in.IncompleteAssessment {
		b.WriteString("Some details are missing; say so and suggest seeing a doctor.\n")
	}

	text := compose(ctx, triageResponsePrompt, b.String(), triageApology)
	return in, careflow.Complete(careflow.Output{
		Text: text,
		Data: map[string]string{
			KeySymptoms:      summary,
			KeyTriageOutcome: outcome,
		},
	})
}
