package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini implements Service with the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini service. An empty model selects the default.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: gc, model: model}, nil
}

// Infer implements Service.
func (g *Gemini) Infer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.UserContent), geminiConfig(req))
	if err != nil {
		kind := KindPermanent
		if isRetryableMessage(err.Error()) || ctx.Err() != nil {
			kind = KindTransient
		}
		return nil, NewError("gemini", kind, err)
	}

	return finish("gemini", req, strings.TrimSpace(resp.Text()), g.model, start)
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system := systemPrompt(req); system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Structured() {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}
