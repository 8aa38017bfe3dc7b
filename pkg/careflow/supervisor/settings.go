package supervisor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/randalmurphal/careflow/pkg/careflow/config"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
)

// ErrMissingSetting indicates a required setting is empty.
var ErrMissingSetting = errors.New("missing setting")

// Settings configures a Supervisor.
type Settings struct {
	// MaxTurns caps Session.RecentTurns. Default 10.
	MaxTurns int
	// SessionTTL is how long an idle session lives. Default 1h.
	SessionTTL time.Duration

	FallbackIntent string
	FallbackRisk   Risk
	// ClassifierRetry governs text service calls made by the classifier.
	ClassifierRetry cferrors.RetryConfig

	EmergencyWorkflow string
	DefaultWorkflow   string
	Routes            map[string]string
	Rules             []RuleSpec
	EmergencyKeywords []string

	// MaxSteps caps the steps of one workflow drive. Zero uses the
	// engine default.
	MaxSteps int
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		MaxTurns:          10,
		SessionTTL:        time.Hour,
		FallbackIntent:    IntentGeneral,
		FallbackRisk:      RiskMedium,
		ClassifierRetry:   cferrors.FallbackRetry,
		EmergencyWorkflow: WorkflowEmergency,
		DefaultWorkflow:   WorkflowTriage,
		Routes:            maps.Clone(DefaultRoutes),
		EmergencyKeywords: slices.Clone(DefaultEmergencyKeywords),
	}
}

// SettingsFromConfig reads settings from cfg, starting from
// DefaultSettings. Configured routes are merged over the default table.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	s := DefaultSettings()

	s.MaxTurns = cfg.Int("session.max_turns", s.MaxTurns)
	s.SessionTTL = cfg.Duration("session.ttl", s.SessionTTL)
	s.FallbackIntent = cfg.String("classifier.fallback_intent", s.FallbackIntent)
	if cfg.Has("classifier.fallback_risk") {
		r, err := ParseRisk(cfg.String("classifier.fallback_risk", ""))
		if err != nil {
			return s, fmt.Errorf("classifier.fallback_risk: %w", err)
		}
		s.FallbackRisk = r
	}
	s.ClassifierRetry.MaxAttempts = cfg.Int("classifier.max_attempts", s.ClassifierRetry.MaxAttempts)

	s.EmergencyWorkflow = cfg.String("router.emergency_workflow", s.EmergencyWorkflow)
	s.DefaultWorkflow = cfg.String("router.default_workflow", s.DefaultWorkflow)
	maps.Copy(s.Routes, cfg.StringMap("router.routes", nil))
	for i, r := range cfg.Slice("router.rules") {
		spec := RuleSpec{When: r.String("when", ""), Workflow: r.String("workflow", "")}
		if spec.When == "" || spec.Workflow == "" {
			return s, fmt.Errorf("router.rules[%d]: %w: when and workflow", i, ErrMissingSetting)
		}
		s.Rules = append(s.Rules, spec)
	}
	s.EmergencyKeywords = cfg.StringSlice("emergency_keywords", s.EmergencyKeywords)
	s.MaxSteps = cfg.Int("engine.max_steps", s.MaxSteps)

	return s, s.Validate()
}

// Validate checks that required settings are present.
func (s Settings) Validate() error {
	var errs []error
	if s.FallbackIntent == "" {
		errs = append(errs, fmt.Errorf("%w: classifier.fallback_intent", ErrMissingSetting))
	}
	if s.FallbackRisk.rank() < 0 {
		errs = append(errs, fmt.Errorf("classifier.fallback_risk: unknown risk level %q", s.FallbackRisk))
	}
	if s.EmergencyWorkflow == "" {
		errs = append(errs, fmt.Errorf("%w: router.emergency_workflow", ErrMissingSetting))
	}
	if s.DefaultWorkflow == "" {
		errs = append(errs, fmt.Errorf("%w: router.default_workflow", ErrMissingSetting))
	}
	if len(s.EmergencyKeywords) == 0 {
		errs = append(errs, fmt.Errorf("%w: emergency_keywords", ErrMissingSetting))
	}
	return errors.Join(errs...)
}
