package workflows

import (
	"strings"
)

// concernKeywords are flagged when they appear in a response or its
// context.
var concernKeywords = []string{
	"chest pain", "shortness of breath", "severe", "emergency",
	"blood", "unconscious", "seizure", "stroke", "heart attack",
	"pregnant", "pregnancy", "medication", "allergic",
}

// escalationKeywords additionally put an urgent notice in front of the
// response.
var escalationKeywords = map[string]bool{
	"chest pain":          true,
	"shortness of breath": true,
	"unconscious":         true,
	"seizure":             true,
	"stroke":              true,
	"heart attack":        true,
}

const escalationNotice = "IMPORTANT: Some of your symptoms may require immediate medical attention. " +
	"Please consult a healthcare provider or emergency services if you're experiencing severe symptoms.\n\n"

const ayurvedaDisclaimer = "\n\nImportant Disclaimer: This dosha assessment is for informational and educational purposes only. " +
	"It is not a substitute for professional medical advice, diagnosis, or treatment. " +
	"Always consult with a qualified Ayurvedic practitioner or healthcare provider before making any changes " +
	"to your diet, lifestyle, or health regimen." +
	"\n\nNext Steps: Consider consulting with a certified Ayurvedic practitioner for a personalized assessment " +
	"and treatment plan tailored to your unique constitution."

// review is the outcome of a safety check.
type review struct {
	Text     string
	Flags    []string
	Escalate bool
}

// reviewResponse flags concern keywords found in response or context. An
// escalation keyword prepends the urgent notice; disclaimer appends the
// Ayurveda disclaimer.
func reviewResponse(response string, context []string, disclaimer bool) review {
	text := strings.ToLower(response)
	ctx := strings.ToLower(strings.Join(context, " "))

	var r review
	for _, kw := range concernKeywords {
		if strings.Contains(text, kw) || strings.Contains(ctx, kw) {
			r.Flags = append(r.Flags, "Detected: "+kw)
			if escalationKeywords[kw] {
				r.Escalate = true
			}
		}
	}

	r.Text = strings.TrimSpace(response)
	if r.Escalate {
		r.Text = escalationNotice + r.Text
	}
	if disclaimer {
		r.Text += ayurvedaDisclaimer
	}
	return r
}
