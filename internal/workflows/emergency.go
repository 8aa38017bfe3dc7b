package workflows

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// Keys published by the emergency workflow.
const (
	KeyEmergencyType          = "emergency_type"
	KeyNeedsEmergencyServices = "needs_emergency_services"
)

// firstAid holds the per-category fallback guidance.
var firstAid = map[string]string{
	supervisor.EmergencyCardiac: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108) now.\n" +
		"- Sit or lie down; avoid exertion.\n" +
		"- Loosen tight clothing; monitor breathing.\n" +
		"- If the person collapses and isn't breathing, begin CPR if trained.",
	supervisor.EmergencyRespiratory: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Sit upright; focus on slow, steady breaths.\n" +
		"- If choking and trained, perform abdominal thrusts.\n" +
		"- Use prescribed inhaler or device if available.",
	supervisor.EmergencyBleeding: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Apply firm, direct pressure with a clean cloth.\n" +
		"- Elevate the limb if no fracture suspected.\n" +
		"- Do not remove deeply embedded objects.",
	supervisor.EmergencyNeurological: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Stroke signs: note the time symptoms started, keep the person safe, no food/drink.\n" +
		"- Seizure: clear the area, place in recovery position, do not restrain, do not put anything in the mouth.",
	supervisor.EmergencyAllergic: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Use prescribed epinephrine auto-injector immediately if available.\n" +
		"- Lie down and raise legs; avoid triggers.",
	supervisor.EmergencyBurn: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108) for severe burns.\n" +
		"- Cool the burn under cool running water for 10-20 minutes.\n" +
		"- Do not use ice or creams; cover with a clean cloth.",
	supervisor.EmergencyOverdose: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Do not leave the person alone; monitor breathing.\n" +
		"- If trained and available, administer naloxone.\n" +
		"- Place in recovery position if drowsy or vomiting.",
	supervisor.EmergencySuicidal: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- In India, you can contact the national mental health helpline 'Kiran' at 1800-599-0019, or local suicide prevention helplines.\n" +
		"- Stay with the person; remove access to dangerous items.\n" +
		"- Seek urgent support from a trusted person or professional.",
	supervisor.EmergencyExtremePain: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Rest; avoid food and drink until assessed.\n" +
		"- Monitor for worsening symptoms.",
	supervisor.EmergencyUnknown: "Immediate actions:\n" +
		"- Call emergency services (112) or ambulance (108).\n" +
		"- Keep the person safe; monitor breathing and consciousness.\n" +
		"- Avoid food or drink; prepare for transport.",
}

// FirstAid returns the fixed guidance for an emergency category.
func FirstAid(kind string) string {
	if text, ok := firstAid[kind]; ok {
		return text
	}
	return firstAid[supervisor.EmergencyUnknown]
}

// Emergency builds the emergency workflow: classify -> first_aid ->
// finalize. It never suspends.
func Emergency(_ Settings) (*careflow.Workflow, error) {
	wf, err := careflow.NewGraph(supervisor.WorkflowEmergency).
		SetMaxIterations(0).
		SetHandoffKeys(KeyEmergencyType).
		AddStep("classify", classifyEmergency).
		AddStep("first_aid", firstAidStep).
		AddStep("finalize", finalizeEmergency).
		AddEdge("classify", "first_aid").
		AddEdge("first_aid", "finalize").
		AddEdge("finalize", careflow.END).
		SetEntry("classify").
		Compile()
	if err != nil {
		return nil, fmt.Errorf("emergency: %w", err)
	}
	return wf, nil
}

func seedKeywords(in careflow.Instance) []string {
	var out []string
	for _, kw := range strings.Split(in.Value(supervisor.SeedKeywords), ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func classifyEmergency(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	message := in.Value(supervisor.SeedMessage)
	kind := supervisor.EmergencyType(message, seedKeywords(in))
	ctx.Logger().Warn("emergency classified", "type", kind, "risk", in.Value(supervisor.SeedRisk))

	in.Collect("incident_summary", truncate(message, 160))
	in.Collect("category", kind)
	return in, careflow.Continue()
}

const firstAidPrompt = `You are an emergency first-aid assistant for India.

Requirements:
- Provide immediate, concise first-aid actions suitable for laypersons.
- Always instruct to call India emergency numbers: 112 (emergency) or 108 (ambulance).
- If alone, advise putting the phone on speaker while calling.
- Do not provide a diagnosis or complex medical procedures.
- Do not recommend medications unless prescribed and immediately available (e.g., epinephrine auto-injector).
- Close with a strong statement that emergency care is required.

Output format:
- A short alert heading.
- An "Immediate actions:" bullet list (5-8 lines), tailored to the category.
- A one-line callout about 112/108.
- A brief escalation line.`

// categoryTitle renders "suicidal_ideation" as "Suicidal Ideation".
func categoryTitle(kind string) string {
	words := strings.Split(kind, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func emergencyFallback(kind string) string {
	return "MEDICAL EMERGENCY DETECTED\nCategory: " + categoryTitle(kind) + "\n\n" +
		FirstAid(kind) + "\n\n" +
		"If you are alone, put the phone on speaker while calling 112/108. " +
		"Follow operator instructions and do not delay seeking care.\n\n" +
		"Seek immediate medical attention. This assistant cannot provide emergency care."
}

func firstAidStep(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	kind := in.Value("category")
	keywords := strings.Join(seedKeywords(in), ", ")
	if keywords == "" {
		keywords = "none"
	}
	user := fmt.Sprintf("Incident summary: %s\nEmergency category: %s\nRisk level: %s\nDetected keywords: %s",
		in.Value("incident_summary"), kind, in.Value(supervisor.SeedRisk), keywords)

	in.Collect("first_aid", compose(ctx, firstAidPrompt, user, emergencyFallback(kind)))
	return in, careflow.Continue()
}

func finalizeEmergency(_ careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	kind := in.Value("category")
	r := reviewResponse(in.Value("first_aid"),
		append([]string{in.Value("incident_summary"), kind}, seedKeywords(in)...), false)

	data := map[string]string{
		KeyEmergencyType:          kind,
		KeyNeedsEmergencyServices: strconv.FormatBool(in.Value(supervisor.SeedRisk) == string(supervisor.RiskEmergency)),
	}
	if len(r.Flags) > 0 {
		data["safety_flags"] = strings.Join(r.Flags, "; ")
	}
	return in, careflow.Complete(careflow.Output{Text: r.Text, Data: data})
}
