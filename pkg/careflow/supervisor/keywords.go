package supervisor

import "strings"

// DefaultEmergencyKeywords trigger emergency routing without a text
// service call.
var DefaultEmergencyKeywords = []string{
	"chest pain",
	"heart attack",
	"stroke",
	"can't breathe",
	"cannot breathe",
	"difficulty breathing",
	"bleeding heavily",
	"severe bleeding",
	"unconscious",
	"seizure",
	"overdose",
	"suicide",
	"suicidal",
	"choking",
	"severe burn",
	"anaphylaxis",
	"allergic reaction severe",
	"lost consciousness",
	"can't feel",
	"paralyzed",
	"extreme pain",
}

// DetectEmergency returns the keywords contained in message, compared
// case-insensitively, in keyword order.
func DetectEmergency(message string, keywords []string) []string {
	text := normalizeApostrophes(strings.ToLower(message))
	var found []string
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

// normalizeApostrophes maps typographic apostrophes to ASCII so "can’t
// breathe" matches.
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

// Emergency categories.
const (
	EmergencyCardiac      = "cardiac"
	EmergencyRespiratory  = "respiratory"
	EmergencyBleeding     = "bleeding"
	EmergencyNeurological = "neurological"
	EmergencyAllergic     = "allergic"
	EmergencyBurn         = "burn"
	EmergencyOverdose     = "overdose"
	EmergencySuicidal     = "suicidal_ideation"
	EmergencyExtremePain  = "extreme_pain"
	EmergencyUnknown      = "unknown"
)

// emergencyTypes is checked in order; the first category with a matching
// term wins.
var emergencyTypes = []struct {
	kind  string
	terms []string
}{
	{EmergencyCardiac, []string{"chest pain", "heart attack"}},
	{EmergencyRespiratory, []string{"can't breathe", "cannot breathe", "difficulty breathing", "choking"}},
	{EmergencyBleeding, []string{"bleeding heavily", "severe bleeding"}},
	{EmergencyNeurological, []string{"stroke", "seizure", "paralyzed", "lost consciousness", "unconscious"}},
	{EmergencyAllergic, []string{"anaphylaxis", "allergic reaction severe"}},
	{EmergencyBurn, []string{"severe burn"}},
	{EmergencyOverdose, []string{"overdose"}},
	{EmergencySuicidal, []string{"suicide", "suicidal"}},
	{EmergencyExtremePain, []string{"extreme pain"}},
}

// EmergencyType classifies an emergency from the message text and the
// keywords already detected in it.
func EmergencyType(message string, detected []string) string {
	text := normalizeApostrophes(strings.ToLower(message))
	seen := make(map[string]bool, len(detected))
	for _, kw := range detected {
		seen[strings.ToLower(kw)] = true
	}
	for _, et := range emergencyTypes {
		for _, term := range et.terms {
			if seen[term] || strings.Contains(text, term) {
				return et.kind
			}
		}
	}
	return EmergencyUnknown
}
