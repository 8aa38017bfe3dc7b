package supervisor

import (
	"fmt"
	"maps"
	"slices"

	"github.com/randalmurphal/careflow/pkg/careflow/condition"
)

// Workflow names used by the default routing table.
const (
	WorkflowTriage        = "triage"
	WorkflowQuestionnaire = "questionnaire"
	WorkflowScheduling    = "scheduling"
	WorkflowDrafting      = "drafting"
	WorkflowEmergency     = "emergency"
)

// DefaultRoutes maps intents to workflows.
var DefaultRoutes = map[string]string{
	IntentSymptom:      WorkflowTriage,
	IntentGeneral:      WorkflowTriage,
	IntentPrescription: WorkflowTriage,
	IntentProgress:     WorkflowTriage,
	IntentDosha:        WorkflowQuestionnaire,
	IntentDoctor:       WorkflowScheduling,
	IntentDocument:     WorkflowDrafting,
	IntentEmergency:    WorkflowEmergency,
}

// RuleSpec is an uncompiled routing rule.
type RuleSpec struct {
	// When is a condition over the variables intent and risk, e.g.
	// "intent == 'doctor' and risk == 'high'".
	When     string
	Workflow string
}

type rule struct {
	when     *condition.Condition
	workflow string
}

// Router maps (intent, risk) to a workflow name. It is pure and total:
// every pair yields a workflow.
//
// Evaluation order: emergency risk, then rules (first match wins), then
// the intent table, then the default workflow.
type Router struct {
	emergency string
	fallback  string
	rules     []rule
	routes    map[string]string
}

// NewRouter builds a router from settings.
func NewRouter(s Settings) (*Router, error) {
	if s.EmergencyWorkflow == "" {
		return nil, fmt.Errorf("router: %w: emergency workflow", ErrMissingSetting)
	}
	if s.DefaultWorkflow == "" {
		return nil, fmt.Errorf("router: %w: default workflow", ErrMissingSetting)
	}
	r := &Router{
		emergency: s.EmergencyWorkflow,
		fallback:  s.DefaultWorkflow,
		routes:    maps.Clone(s.Routes),
	}
	for i, spec := range s.Rules {
		if spec.Workflow == "" {
			return nil, fmt.Errorf("router: rule %d: %w: workflow", i, ErrMissingSetting)
		}
		c, err := condition.Compile(spec.When)
		if err != nil {
			return nil, fmt.Errorf("router: rule %d: %w", i, err)
		}
		r.rules = append(r.rules, rule{when: c, workflow: spec.Workflow})
	}
	return r, nil
}

// Route selects the workflow for intent at risk.
func (r *Router) Route(intent string, risk Risk) string {
	if risk == RiskEmergency {
		return r.emergency
	}
	if len(r.rules) > 0 {
		vars := map[string]any{"intent": intent, "risk": string(risk)}
		for _, rl := range r.rules {
			if rl.when.Match(vars) {
				return rl.workflow
			}
		}
	}
	if wf, ok := r.routes[intent]; ok && wf != "" {
		return wf
	}
	return r.fallback
}

// EmergencyWorkflow returns the workflow emergencies route to.
func (r *Router) EmergencyWorkflow() string { return r.emergency }

// Targets returns every workflow the router can select, sorted.
func (r *Router) Targets() []string {
	set := map[string]bool{r.emergency: true, r.fallback: true}
	for _, wf := range r.routes {
		if wf != "" {
			set[wf] = true
		}
	}
	for _, rl := range r.rules {
		set[rl.workflow] = true
	}
	return slices.Sorted(maps.Keys(set))
}
