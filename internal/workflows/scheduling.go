package workflows

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/confidence"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// Handoff keys published by scheduling.
const (
	KeySpecialty = "specialty"
	KeyCity      = "city"
)

// GeneralAyurveda is the specialty used when mapping fails.
const GeneralAyurveda = "General Ayurveda"

// Specialties the mapper may recommend.
var Specialties = []string{
	"Panchakarma",
	"Rasayana",
	GeneralAyurveda,
	"Ayurvedic Dermatology",
	"Ayurvedic Gastroenterology",
	"Ayurvedic Gynecology",
	"Kayachikitsa",
}

// SchedulingFields are asked before searching.
var SchedulingFields = []confidence.Field{
	{Name: KeyCity, Question: "Which city would you like to see a doctor in?"},
	{Name: "preferred_date", Question: "When would you like the appointment?"},
}

var errNoDirectory = errors.New("no doctor directory configured")

// BookingContext is what a booking front end needs to offer appointments.
type BookingContext struct {
	Symptoms      string   `json:"symptoms"`
	Specialties   []string `json:"specialties"`
	City          string   `json:"city"`
	PreferredDate string   `json:"preferred_date,omitempty"`
	Doctors       []Doctor `json:"doctors"`
}

// Scheduling builds the doctor scheduling workflow:
// intake -> gather (follow-up loop) -> match -> search.
//
// It reads the symptoms and triage_outcome published by triage, when
// present.
func Scheduling(s Settings) (*careflow.Workflow, error) {
	loop := &confidence.Loop{
		Name:      "gather",
		Fields:    SchedulingFields,
		Threshold: s.Threshold,
		Next:      "match",
		Extract:   &confidence.TextExtractor{Topic: "appointment"},
	}
	sch := &scheduler{settings: s}
	g := careflow.NewGraph(supervisor.WorkflowScheduling).
		SetMaxIterations(s.maxIterations(supervisor.WorkflowScheduling)).
		SetHandoffKeys(KeySpecialty, KeyCity).
		AddStep("intake", intake("appointment", SchedulingFields, nil)).
		AddEdge("intake", "gather").
		SetEntry("intake")

	wf, err := loop.Attach(g).
		AddStep("match", sch.match).
		AddStep("search", sch.search).
		AddEdge("match", "search").
		AddEdge("search", careflow.END).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}
	return wf, nil
}

type scheduler struct {
	settings Settings
}

func (sc *scheduler) symptoms(in careflow.Instance) string {
	if v := in.Value(KeySymptoms); v != "" {
		return v
	}
	return "general consultation"
}

const specialtyPrompt = `You are a medical specialty advisor. Based on the patient's symptoms, suggest 1-2 appropriate Ayurvedic specialties.

Available specialties:
- Panchakarma (detoxification, chronic diseases)
- Rasayana (rejuvenation, immunity, anti-aging)
- General Ayurveda (common ailments, preventive care)
- Ayurvedic Dermatology (skin conditions, hair problems)
- Ayurvedic Gastroenterology (digestive issues, gut health)
- Ayurvedic Gynecology (women's health, reproductive issues)
- Kayachikitsa (internal medicine, fever, infections)`

func (sc *scheduler) match(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	user := "Symptoms: " + sc.symptoms(in)
	if v := in.Value(KeyTriageOutcome); v != "" {
		user += "\nTriage outcome: " + v
	}
	res, err := ask(ctx,
		llm.Request{
			SystemPrompt: specialtyPrompt,
			UserContent:  user,
			SchemaHint:   `{"specialties": ["string"], "explanation": "string"}`,
			Temperature:  0.3,
		},
		llm.Request{
			SystemPrompt: "Pick up to two of: " + strings.Join(Specialties, ", ") + ".",
			UserContent:  user,
			SchemaHint:   `{"specialties": ["string"]}`,
		},
	)

	var picked []string
	if err == nil {
		picked = knownSpecialties(res.Data["specialties"])
		if len(picked) == 0 {
			err = &cferrors.ContentError{Input: res.Content, Message: "no known specialty"}
		}
	}
	if err != nil {
		ctx.Degraded(cferrors.KindNodeDegraded, GeneralAyurveda, err)
		picked = []string{GeneralAyurveda}
	}

	in.Collect("specialties", strings.Join(picked, ", "))
	if err == nil {
		in.Collect("specialty_explanation", strings.TrimSpace(res.String("explanation")))
	}
	return in, careflow.Continue()
}

// knownSpecialties keeps the recognized names from a decoded JSON value,
// at most two.
func knownSpecialties(v any) []string {
	var raw []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(val, ",")
	}

	var out []string
	for _, s := range raw {
		for _, known := range Specialties {
			if strings.EqualFold(strings.TrimSpace(s), known) && len(out) < 2 {
				out = append(out, known)
			}
		}
	}
	return out
}

func (sc *scheduler) search(ctx careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
	specialties := strings.Split(in.Value("specialties"), ", ")
	city := in.Value(KeyCity)
	if city == "" {
		ctx.Logger().Warn("no city given, using default", "city", sc.settings.DefaultCity)
		city = sc.settings.DefaultCity
	}
	booking := BookingContext{
		Symptoms:      sc.symptoms(in),
		Specialties:   specialties,
		City:          city,
		PreferredDate: in.Value("preferred_date"),
	}
	specialtyText := strings.Join(specialties, ", ")

	var (
		doctors []Doctor
		err     error
	)
	if sc.settings.Directory == nil {
		err = errNoDirectory
	} else {
		doctors, err = sc.settings.Directory.Search(ctx, specialties, city, sc.settings.MinRating)
	}

	var text string
	switch {
	case err != nil:
		ctx.Degraded(cferrors.KindNodeDegraded, "recommendation without doctors", err)
		text = fmt.Sprintf("Based on your symptoms, I recommend consulting a %s specialist in %s. "+
			"However, I'm having trouble accessing the doctor database right now. Please try again in a moment.",
			specialtyText, city)
	case len(doctors) == 0:
		text = fmt.Sprintf("I couldn't find any %s specialists in %s right now. "+
			"Would you like to try a different city or specialty?", specialtyText, city)
	default:
		if n := sc.settings.MaxDoctors; n > 0 && len(doctors) > n {
			doctors = doctors[:n]
		}
		booking.Doctors = doctors
		text = sc.present(ctx, in, booking)
	}

	encoded, encErr := sonic.ConfigStd.MarshalToString(booking)
	if encErr != nil {
		return in, careflow.Fail("encode booking context: " + encErr.Error())
	}
	return in, careflow.Complete(careflow.Output{
		Text: text,
		Data: map[string]string{
			KeySpecialty:      specialties[0],
			KeyCity:           city,
			"specialties":     specialtyText,
			"doctor_count":    fmt.Sprint(len(booking.Doctors)),
			"booking_context": encoded,
		},
	})
}

const doctorPrompt = `You are a helpful medical assistant helping a patient find the right Ayurvedic doctor.
Give a warm, personalized response in 3-4 sentences:
- the specialty recommendation with a short explanation
- a brief overview of the doctors found
- end with: "You can view the complete list of doctors and book an appointment using the button below."`

func (sc *scheduler) present(ctx careflow.Context, in careflow.Instance, b BookingContext) string {
	var lines strings.Builder
	fmt.Fprintf(&lines, "Symptoms: %s\nRecommended specialties: %s\nCity: %s\n",
		b.Symptoms, strings.Join(b.Specialties, ", "), b.City)
	if v := in.Value("specialty_explanation"); v != "" {
		fmt.Fprintf(&lines, "Why: %s\n", v)
	}
	lines.WriteString("Doctors found:\n")
	for _, d := range b.Doctors {
		fmt.Fprintf(&lines, "- %s (%s), rating %.1f\n", d.Name, strings.Join(d.Specialties, ", "), d.Rating)
	}

	fallback := fmt.Sprintf("I recommend consulting a %s specialist. I found %d doctor(s) in %s:\n",
		strings.Join(b.Specialties, ", "), len(b.Doctors), b.City)
	for _, d := range b.Doctors {
		fallback += fmt.Sprintf("- %s, rating %.1f\n", d.Name, d.Rating)
	}
	fallback += "You can view the complete list of doctors and book an appointment using the button below."

	return compose(ctx, doctorPrompt, lines.String(), fallback)
}
