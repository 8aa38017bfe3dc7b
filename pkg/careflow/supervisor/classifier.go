package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
)

// Intents the classifier may return.
const (
	IntentSymptom      = "symptom"
	IntentDosha        = "dosha"
	IntentDoctor       = "doctor"
	IntentPrescription = "prescription"
	IntentProgress     = "progress"
	IntentDocument     = "document"
	IntentEmergency    = "emergency"
	IntentGeneral      = "general"
)

// Intents lists every intent label.
var Intents = []string{
	IntentSymptom, IntentDosha, IntentDoctor, IntentPrescription,
	IntentProgress, IntentDocument, IntentEmergency, IntentGeneral,
}

// Classification methods.
const (
	MethodText     = "text_service"
	MethodKeyword  = "keyword"
	MethodFallback = "fallback"
)

// intentContextTurns is how many recent turns the intent prompt sees.
const intentContextTurns = 3

// Classification is the classifier's verdict for one message.
type Classification struct {
	Intent       string
	IntentMethod string
	Risk         Risk
	RiskMethod   string
	// Keywords are the emergency keywords found in the message.
	Keywords []string
	// Degraded lists the labels that fell back to configured defaults.
	Degraded []*cferrors.DegradedError
}

// Classifier labels a message with an intent and a risk level. Intent and
// risk are inferred concurrently. An emergency keyword fixes the risk
// without a text service call.
type Classifier struct {
	svc            llm.Service
	keywords       []string
	fallbackIntent string
	fallbackRisk   Risk
	retry          cferrors.RetryConfig
}

// NewClassifier creates a classifier. svc may be nil, in which case every
// label comes from the fallbacks or keywords.
func NewClassifier(svc llm.Service, settings Settings) *Classifier {
	return &Classifier{
		svc:            svc,
		keywords:       settings.EmergencyKeywords,
		fallbackIntent: settings.FallbackIntent,
		fallbackRisk:   settings.FallbackRisk,
		retry:          settings.ClassifierRetry,
	}
}

// errNoService marks classification done without a text service.
var errNoService = errors.New("no text service configured")

// Classify labels message. It never fails: any label the text service
// cannot provide is replaced by its fallback and reported in Degraded.
func (c *Classifier) Classify(ctx context.Context, message string, recent []Turn) Classification {
	cls := Classification{Keywords: DetectEmergency(message, c.keywords)}

	var (
		intent, risk       string
		intentErr, riskErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		intent, intentErr = c.inferIntent(gctx, message, recent)
		return nil
	})
	if len(cls.Keywords) == 0 {
		g.Go(func() error {
			risk, riskErr = c.inferRisk(gctx, message)
			return nil
		})
	}
	_ = g.Wait()

	if intentErr != nil {
		cls.Intent, cls.IntentMethod = c.fallbackIntent, MethodFallback
		cls.Degraded = append(cls.Degraded,
			cferrors.Degraded(cferrors.KindClassificationDegraded, "classifier.intent", c.fallbackIntent, intentErr))
	} else {
		cls.Intent, cls.IntentMethod = intent, MethodText
	}

	switch {
	case len(cls.Keywords) > 0:
		cls.Risk, cls.RiskMethod = RiskEmergency, MethodKeyword
	case riskErr != nil:
		cls.Risk, cls.RiskMethod = c.fallbackRisk, MethodFallback
		cls.Degraded = append(cls.Degraded,
			cferrors.Degraded(cferrors.KindClassificationDegraded, "classifier.risk", string(c.fallbackRisk), riskErr))
	default:
		cls.Risk, cls.RiskMethod = Risk(risk), MethodText
	}
	return cls
}

func (c *Classifier) inferIntent(ctx context.Context, message string, recent []Turn) (string, error) {
	if c.svc == nil {
		return "", errNoService
	}
	history := "(No previous context)"
	if n := len(recent); n > 0 {
		lines := make([]string, 0, intentContextTurns)
		for _, t := range recent[max(0, n-intentContextTurns):] {
			lines = append(lines, t.Role+": "+t.Content)
		}
		history = strings.Join(lines, "\n")
	}

	primary := llm.Request{
		SystemPrompt: intentPrompt,
		UserContent:  "Conversation context:\n" + history + "\n\nCurrent user message: " + message,
		SchemaHint:   `{"intent": "` + strings.Join(Intents, "|") + `", "confidence": 0.0, "reasoning": "string"}`,
		Temperature:  0.3,
	}
	fallback := llm.Request{
		SystemPrompt: "Classify the message as one of: " + strings.Join(Intents, ", ") + `. Reply {"intent": "<label>"}.`,
		UserContent:  message,
		SchemaHint:   `{"intent": "string"}`,
	}
	res, err := llm.InferWithFallback(ctx, c.svc, primary, fallback, c.retry)
	if err != nil {
		return "", err
	}
	label := strings.ToLower(strings.TrimSpace(res.String("intent")))
	if !slices.Contains(Intents, label) {
		return "", &cferrors.ContentError{Input: res.Content, Message: fmt.Sprintf("unknown intent %q", label)}
	}
	return label, nil
}

func (c *Classifier) inferRisk(ctx context.Context, message string) (string, error) {
	if c.svc == nil {
		return "", errNoService
	}
	primary := llm.Request{
		SystemPrompt: riskPrompt,
		UserContent:  "Patient message: " + message,
		SchemaHint:   `{"risk_level": "low|medium|high|emergency", "reasoning": "string", "urgency_score": 0.0}`,
		Temperature:  0.3,
	}
	fallback := llm.Request{
		SystemPrompt: `Rate the medical risk of the message as low, medium, high, or emergency. Reply {"risk_level": "<label>"}.`,
		UserContent:  message,
		SchemaHint:   `{"risk_level": "string"}`,
	}
	res, err := llm.InferWithFallback(ctx, c.svc, primary, fallback, c.retry)
	if err != nil {
		return "", err
	}
	r, err := ParseRisk(res.String("risk_level"))
	if err != nil {
		return "", &cferrors.ContentError{Input: res.Content, Message: err.Error()}
	}
	return string(r), nil
}

const intentPrompt = `You classify user intent for a medical telemedicine assistant.

Available intents:
- symptom: reporting symptoms or health concerns
- dosha: asking about Ayurvedic constitution (prakriti)
- doctor: wants to find or book a doctor
- prescription: asking about medications or prescriptions
- progress: tracking progress or a follow-up
- document: wants a medical letter, note, or other document drafted
- emergency: an urgent medical emergency
- general: general questions or greetings`

const riskPrompt = `You are a medical triage assistant. Assess the risk level of the patient message.

Risk levels:
- low: minor concern, can wait, self-care possible
- medium: should see a doctor soon, not urgent
- high: serious concern, needs a doctor promptly
- emergency: life-threatening, immediate medical attention required`
