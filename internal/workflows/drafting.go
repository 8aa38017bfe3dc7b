package workflows

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/confidence"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// KeyDocumentType is the handoff key naming the drafted document.
const KeyDocumentType = "document_type"

// DraftingFields describe the document to draft.
var DraftingFields = []confidence.Field{
	{Name: KeyDocumentType, Question: "What kind of document do you need (for example a medical leave letter or a referral request)?"},
	{Name: "recipient", Question: "Who is the document addressed to?"},
	{Name: "purpose", Question: "What should the document say or request?"},
}

// Drafting builds the document drafting workflow:
// intake -> gather (follow-up loop) -> draft.
func Drafting(s Settings) (*careflow.Workflow, error) {
	loop := &confidence.Loop{
		Name:      "gather",
		Fields:    DraftingFields,
		Threshold: s.Threshold,
		Next:      "draft",
		Extract:   &confidence.TextExtractor{Topic: "document"},
	}
	g := careflow.NewGraph(supervisor.WorkflowDrafting).
		SetMaxIterations(s.maxIterations(supervisor.WorkflowDrafting)).
		SetHandoffKeys(KeyDocumentType).
		AddStep("intake", intake("document", DraftingFields, nil)).
		AddEdge("intake", "gather").
		SetEntry("intake")

	wf, err := loop.Attach(g).
		AddStep("draft", draftDocument).
		AddEdge("draft", careflow.END).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("drafting: %w", err)
	}
	return wf, nil
}

const draftPrompt = `You draft short, formal healthcare documents for patients.
Write only the document body, with a greeting and a closing. Use placeholders like [Your Name] for anything unknown.
Do not invent diagnoses, dates, or medical facts.`

func draftDocument(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	docType := orDefault(in.Value(KeyDocumentType), "letter")
	recipient := orDefault(in.Value("recipient"), "To Whom It May Concern")
	purpose := orDefault(in.Value("purpose"), in.Value(supervisor.SeedMessage))

	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\nRecipient: %s\nPurpose: %s\n", docType, recipient, purpose)
	if v := in.Value(KeySymptoms); v != "" {
		fmt.Fprintf(&b, "Patient-reported symptoms: %s\n", v)
	}
	if in.IncompleteAssessment {
		b.WriteString("Some details are missing; use placeholders.\n")
	}

	fallback := fmt.Sprintf("Dear %s,\n\nI am writing regarding the following: %s.\n\n"+
		"Please let me know if any further information is required.\n\nSincerely,\n[Your Name]",
		recipient, strings.TrimSuffix(purpose, "."))

	text := compose(ctx, draftPrompt, b.String(), fallback)
	r := reviewResponse(text, []string{purpose}, false)

	data := map[string]string{KeyDocumentType: docType, "recipient": recipient}
	if len(r.Flags) > 0 {
		data["safety_flags"] = strings.Join(r.Flags, "; ")
	}
	return in, careflow.Complete(careflow.Output{Text: r.Text, Data: data})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
