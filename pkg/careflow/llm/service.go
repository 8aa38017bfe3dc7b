// Package llm is the text service boundary. Workflow steps and the
// classifier call Service.Infer and never depend on a concrete backend.
//
// Backends: ClaudeCLI (the claude binary), Gemini (google.golang.org/genai),
// Ollama (github.com/ollama/ollama/api), and MockService for tests.
package llm

import (
	"context"
	"time"
)

// Service classifies or generates text.
type Service interface {
	Infer(ctx context.Context, req Request) (*Result, error)
}

// Request is one inference call.
type Request struct {
	// SystemPrompt sets the task.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// UserContent is the text to classify or answer.
	UserContent string `json:"user_content"`
	// SchemaHint, when set, asks for a JSON object shaped like the hint.
	// The reply is decoded into Result.Data.
	SchemaHint string `json:"schema_hint,omitempty"`
	// Temperature is passed through when positive.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens is passed through when positive.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Structured reports whether the caller expects JSON.
func (r Request) Structured() bool { return r.SchemaHint != "" }

// Result is the output of an inference call.
type Result struct {
	Content  string         `json:"content"`
	Data     map[string]any `json:"data,omitempty"`
	Model    string         `json:"model,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// String returns Data[key] as a string, or "".
func (r *Result) String(key string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	switch v := r.Data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return stringify(v)
	}
}

// finish builds a Result from raw backend text, decoding JSON for
// structured requests.
func finish(op string, req Request, content, model string, start time.Time) (*Result, error) {
	res := &Result{Content: content, Model: model, Duration: time.Since(start)}
	if !req.Structured() {
		if content == "" {
			return nil, NewError(op, KindContent, errEmptyOutput)
		}
		return res, nil
	}
	data, err := DecodeJSON(content)
	if err != nil {
		return nil, NewError(op, KindContent, err)
	}
	res.Data = data
	return res, nil
}
