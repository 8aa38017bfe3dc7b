package confidence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
)

// ErrNoService is returned by TextExtractor when the step context has no
// text service.
var ErrNoService = errors.New("no text service configured")

// Extractor pulls values for missing fields out of a free-text answer.
// Values for fields it cannot find are left out or empty.
type Extractor interface {
	Extract(ctx careflow.Context, answer string, missing []Field) (map[string]string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx careflow.Context, answer string, missing []Field) (map[string]string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx careflow.Context, answer string, missing []Field) (map[string]string, error) {
	return f(ctx, answer, missing)
}

// TextExtractor asks the step's text service for a JSON object keyed by the
// missing field names. A failed or unusable reply is retried once with a
// shorter prompt.
type TextExtractor struct {
	// Topic names the subject for the prompt, e.g. "symptom" or
	// "constitution".
	Topic string
	// Retry overrides cferrors.FallbackRetry.
	Retry *cferrors.RetryConfig
}

// Extract implements Extractor.
func (e *TextExtractor) Extract(ctx careflow.Context, answer string, missing []Field) (map[string]string, error) {
	svc := ctx.LLM()
	if svc == nil {
		return nil, ErrNoService
	}
	retry := cferrors.FallbackRetry
	if e.Retry != nil {
		retry = *e.Retry
	}

	primary, fallback := e.requests(answer, missing)
	res, err := llm.InferWithFallback(ctx, svc, primary, fallback, retry)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", e.topic(), err)
	}

	out := make(map[string]string, len(missing))
	for _, f := range missing {
		if v := res.String(f.Name); v != "" && !isNull(v) {
			out[f.Name] = v
		}
	}
	return out, nil
}

func (e *TextExtractor) requests(answer string, missing []Field) (llm.Request, llm.Request) {
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = f.Name
	}
	hint := `{"` + strings.Join(names, `": "string or null", "`) + `": "string or null"}`

	var b strings.Builder
	fmt.Fprintf(&b, "You extract %s details from a patient's reply.\n", e.topic())
	b.WriteString("Fill each field only if the reply states it. Use null for anything not mentioned. Do not guess.\n")
	b.WriteString("Fields:\n")
	for _, f := range missing {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Prompt())
	}

	primary := llm.Request{
		SystemPrompt: b.String(),
		UserContent:  answer,
		SchemaHint:   hint,
		Temperature:  0.1,
	}
	fallback := llm.Request{
		SystemPrompt: "Return JSON with keys " + strings.Join(names, ", ") + ". Use null when unknown.",
		UserContent:  answer,
		SchemaHint:   hint,
	}
	return primary, fallback
}

func (e *TextExtractor) topic() string {
	if e.Topic == "" {
		return "intake"
	}
	return e.Topic
}

func isNull(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "null", "none", "unknown", "n/a":
		return true
	}
	return false
}
