// Package workflows defines the conversation workflows the supervisor
// routes into: symptom triage, the constitution questionnaire, doctor
// scheduling, document drafting, and emergency escalation.
//
// Every step that calls the text service has a fixed fallback. A failed
// call is reported through careflow.Context.Degraded and the workflow
// carries on with the fallback, so a text service outage never fails a
// workflow.
package workflows

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/config"
	"github.com/randalmurphal/careflow/pkg/careflow/confidence"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// Settings tunes the workflows.
type Settings struct {
	// Threshold is the coverage at which follow-up loops stop asking.
	Threshold float64
	// MaxIterations is the follow-up budget per workflow name.
	MaxIterations map[string]int

	// DefaultCity is searched when the user never names one.
	DefaultCity string
	// MinRating filters directory results.
	MinRating float64
	// MaxDoctors caps the doctors listed in a booking.
	MaxDoctors int
	// Directory is searched by the scheduling workflow. Nil lists no
	// doctors.
	Directory Directory
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		Threshold: confidence.DefaultThreshold,
		MaxIterations: map[string]int{
			supervisor.WorkflowTriage:        3,
			supervisor.WorkflowQuestionnaire: 5,
			supervisor.WorkflowScheduling:    2,
			supervisor.WorkflowDrafting:      3,
		},
		DefaultCity: "Delhi",
		MinRating:   4.0,
		MaxDoctors:  5,
	}
}

// SettingsFromConfig reads confidence.threshold,
// workflows.<name>.max_iterations, the scheduling.* keys, and the doctors
// list.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	s := DefaultSettings()
	s.Threshold = cfg.Float("confidence.threshold", s.Threshold)
	if s.Threshold <= 0 || s.Threshold > 1 {
		return s, fmt.Errorf("confidence.threshold: %v is outside (0, 1]", s.Threshold)
	}
	for name, n := range s.MaxIterations {
		s.MaxIterations[name] = cfg.Int("workflows."+name+".max_iterations", n)
		if s.MaxIterations[name] < 0 {
			return s, fmt.Errorf("workflows.%s.max_iterations: negative", name)
		}
	}
	s.DefaultCity = cfg.String("scheduling.default_city", s.DefaultCity)
	s.MinRating = cfg.Float("scheduling.min_rating", s.MinRating)
	s.MaxDoctors = cfg.Int("scheduling.max_doctors", s.MaxDoctors)

	if cfg.Has("doctors") {
		dir, err := DirectoryFromConfig(cfg.Slice("doctors"))
		if err != nil {
			return s, err
		}
		s.Directory = dir
	}
	return s, nil
}

func (s Settings) maxIterations(name string) int {
	if n, ok := s.MaxIterations[name]; ok {
		return n
	}
	return careflow.DefaultMaxIterations
}

// Register compiles every workflow and adds it to reg.
func Register(reg *supervisor.Workflows, s Settings) error {
	builders := []func(Settings) (*careflow.Workflow, error){
		Triage, Questionnaire, Scheduling, Drafting, Emergency,
	}
	var errs []error
	for _, build := range builders {
		wf, err := build(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := reg.Register(wf.Name(), wf); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", wf.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// errNoService is the degradation cause when no text service is set.
var errNoService = errors.New("no text service configured")

// ask calls the step's text service with primary, then once with fallback.
func ask(ctx careflow.Context, primary, fallback llm.Request) (*llm.Result, error) {
	svc := ctx.LLM()
	if svc == nil {
		return nil, errNoService
	}
	return llm.InferWithFallback(ctx, svc, primary, fallback, cferrors.FallbackRetry)
}

const briefPrompt = "You are a careful medical assistant. Answer briefly, do not diagnose, and recommend professional care when in doubt."

// compose asks for free text. On failure it reports the degradation and
// returns fallback.
func compose(ctx careflow.Context, system, user, fallback string) string {
	res, err := ask(ctx,
		llm.Request{SystemPrompt: system, UserContent: user, Temperature: 0.7},
		llm.Request{SystemPrompt: briefPrompt, UserContent: user, Temperature: 0.3},
	)
	if err != nil {
		ctx.Degraded(cferrors.KindNodeDegraded, "template response", err)
		return fallback
	}
	return strings.TrimSpace(res.Content)
}

// intake returns a step that extracts fields from the opening message
// before the follow-up loop starts asking.
func intake(topic string, fields []confidence.Field, fallback func(careflow.Instance) map[string]string) careflow.StepFunc {
	extract := &confidence.TextExtractor{Topic: topic}
	return func(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
		message := in.Value(supervisor.SeedMessage)
		var missing []confidence.Field
		for _, f := range fields {
			if !in.Has(f.Name) {
				missing = append(missing, f)
			}
		}
		if message == "" || len(missing) == 0 {
			return in, careflow.Continue()
		}

		values, err := extract.Extract(ctx, message, missing)
		if err != nil {
			ctx.Degraded(cferrors.KindNodeDegraded, "no extraction", err)
			if fallback != nil {
				values = fallback(in)
			}
		}
		for _, f := range missing {
			in.Collect(f.Name, strings.TrimSpace(values[f.Name]))
		}
		return in, careflow.Continue()
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
