package workflows

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/confidence"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// KeyDominantType is the handoff key carrying the dominant dosha.
const KeyDominantType = "dominant_type"

// BalancedTridosha is reported when no dosha could be inferred.
const BalancedTridosha = "Balanced Tridosha"

// QuestionnaireFields are the constitution areas the questionnaire covers.
var QuestionnaireFields = []confidence.Field{
	{Name: "body_type", Question: "How would you describe your body frame: thin and light, medium and muscular, or solid and heavy?"},
	{Name: "digestion", Question: "How are your appetite and digestion: variable, strong and sharp, or slow and steady?"},
	{Name: "sleep", Question: "How do you usually sleep: light and interrupted, sound and moderate, or deep and long?"},
	{Name: "temperament", Question: "How do you tend to react under stress: anxious, irritable, or calm?"},
	{Name: "skin", Question: "Is your skin mostly dry, warm and sensitive, or smooth and oily?"},
	{Name: "energy", Question: "Is your energy variable, intense, or steady throughout the day?"},
}

var doshas = []string{"Vata", "Pitta", "Kapha"}

// Questionnaire builds the constitution questionnaire:
// intake -> gather (follow-up loop) -> infer -> respond.
func Questionnaire(s Settings) (*careflow.Workflow, error) {
	loop := &confidence.Loop{
		Name:      "gather",
		Fields:    QuestionnaireFields,
		Threshold: s.Threshold,
		Next:      "infer",
		Extract:   &confidence.TextExtractor{Topic: "Ayurvedic constitution"},
	}
	g := careflow.NewGraph(supervisor.WorkflowQuestionnaire).
		SetMaxIterations(s.maxIterations(supervisor.WorkflowQuestionnaire)).
		SetHandoffKeys(KeyDominantType).
		AddStep("intake", intake("Ayurvedic constitution", QuestionnaireFields, nil)).
		AddEdge("intake", "gather").
		SetEntry("intake")

	wf, err := loop.Attach(g).
		AddStep("infer", inferDosha).
		AddStep("respond", respondDosha).
		AddEdge("infer", "respond").
		AddEdge("respond", careflow.END).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("questionnaire: %w", err)
	}
	return wf, nil
}

// doshaResult is the inferred composition. Scores sum to 100.
type doshaResult struct {
	Scores      map[string]float64
	Dominant    string
	Explanation string
}

func balancedResult() doshaResult {
	return doshaResult{
		Scores:      map[string]float64{"Vata": 33.3, "Pitta": 33.3, "Kapha": 33.3},
		Dominant:    BalancedTridosha,
		Explanation: "Unable to determine specific dosha dominance. You may have a balanced constitution.",
	}
}

// normalize scales the scores to sum to 100 and fills a missing dominant
// dosha with the highest score.
func (r *doshaResult) normalize() {
	total := 0.0
	for _, d := range doshas {
		total += r.Scores[d]
	}
	if total <= 0 {
		*r = balancedResult()
		return
	}
	best := doshas[0]
	for _, d := range doshas {
		r.Scores[d] = math.Round(r.Scores[d]/total*1000) / 10
		if r.Scores[d] > r.Scores[best] {
			best = d
		}
	}
	if r.Dominant == "" || strings.EqualFold(r.Dominant, "unknown") {
		r.Dominant = best
	}
	if r.Explanation == "" {
		r.Explanation = "Your constitution shows " + r.Dominant + " dominance based on your characteristics."
	}
}

const doshaPrompt = `You are an Ayurvedic expert trained in dosha analysis. Based on the characteristics given, determine the person's dosha composition.

VATA (Air + Space): thin/light frame, dry skin, variable appetite, light interrupted sleep, quick mind, anxious under stress.
PITTA (Fire + Water): medium muscular build, warm body, strong appetite, sound sleep, sharp focus, intense nature.
KAPHA (Earth + Water): solid build, smooth oily skin, slow steady digestion, deep long sleep, calm steady mind.

Scores are 0-100. The dominant dosha may be a combination like "Vata-Pitta". The explanation is 2-3 sentences.`

func inferDosha(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	var answers strings.Builder
	for _, f := range QuestionnaireFields {
		if v := in.Value(f.Name); v != "" {
			fmt.Fprintf(&answers, "%s: %s\n", f.Name, v)
		}
	}

	hint := `{"vata_score": 0, "pitta_score": 0, "kapha_score": 0, "dominant": "string", "explanation": "string"}`
	res, err := ask(ctx,
		llm.Request{SystemPrompt: doshaPrompt, UserContent: answers.String(), SchemaHint: hint, Temperature: 0.3},
		llm.Request{SystemPrompt: "Score Vata, Pitta, and Kapha from 0 to 100 for these traits.", UserContent: answers.String(), SchemaHint: hint},
	)

	var result doshaResult
	if err == nil {
		result, err = parseDosha(res)
	}
	if err != nil {
		ctx.Degraded(cferrors.KindNodeDegraded, BalancedTridosha, err)
		result = balancedResult()
		in.Collect("inference_degraded", "true")
	}

	for _, d := range doshas {
		in.Collect(strings.ToLower(d)+"_score", strconv.FormatFloat(result.Scores[d], 'f', 1, 64))
	}
	in.Collect("dominant", result.Dominant)
	in.Collect("explanation", result.Explanation)
	return in, careflow.Continue()
}

func parseDosha(res *llm.Result) (doshaResult, error) {
	r := doshaResult{
		Scores:      make(map[string]float64, len(doshas)),
		Dominant:    strings.TrimSpace(res.String("dominant")),
		Explanation: strings.TrimSpace(res.String("explanation")),
	}
	for _, d := range doshas {
		key := strings.ToLower(d) + "_score"
		raw := strings.TrimSpace(res.String(key))
		if raw == "" {
			return r, &cferrors.ContentError{Input: res.Content, Message: "missing " + key}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return r, &cferrors.ContentError{Input: res.Content, Message: fmt.Sprintf("bad %s %q", key, raw)}
		}
		r.Scores[d] = v
	}
	r.normalize()
	return r, nil
}

const doshaResponsePrompt = `You are an Ayurvedic wellness guide. Explain the person's dosha assessment warmly and concisely:
- state the dominant dosha and the distribution
- describe what it means in everyday terms
- give 3-4 general diet and lifestyle suggestions
Do not diagnose or prescribe.`

func respondDosha(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	dominant := in.Value("dominant")
	summary := fmt.Sprintf("Dominant dosha: %s\nVata: %s%%\nPitta: %s%%\nKapha: %s%%\n%s",
		dominant, in.Value("vata_score"), in.Value("pitta_score"), in.Value("kapha_score"), in.Value("explanation"))

	fallback := fmt.Sprintf("Based on your responses, your dominant dosha appears to be %s.\n\n"+
		"Dosha Distribution:\n- Vata: %s%%\n- Pitta: %s%%\n- Kapha: %s%%\n\n%s\n\n"+
		"Please consult with an Ayurvedic practitioner for personalized guidance.",
		dominant, in.Value("vata_score"), in.Value("pitta_score"), in.Value("kapha_score"), in.Value("explanation"))

	text := compose(ctx, doshaResponsePrompt, summary, fallback)

	var answers []string
	for _, f := range QuestionnaireFields {
		answers = append(answers, in.Value(f.Name))
	}
	r := reviewResponse(text, answers, true)

	data := map[string]string{
		KeyDominantType: dominant,
		"vata_score":    in.Value("vata_score"),
		"pitta_score":   in.Value("pitta_score"),
		"kapha_score":   in.Value("kapha_score"),
	}
	if in.Has("inference_degraded") {
		data["inference_degraded"] = "true"
	}
	if len(r.Flags) > 0 {
		data["safety_flags"] = strings.Join(r.Flags, "; ")
	}
	return in, careflow.Complete(careflow.Output{Text: r.Text, Data: data})
}
