package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// Ollama implements Service with a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates a service using OLLAMA_HOST (default
// http://127.0.0.1:11434).
func NewOllama(model string) (*Ollama, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, NewError("ollama", KindPermanent, err)
	}
	return NewOllamaWithClient(client, model), nil
}

// NewOllamaWithClient wraps an existing client.
func NewOllamaWithClient(client *api.Client, model string) *Ollama {
	if model == "" {
		model = "llama3.2"
	}
	return &Ollama{client: client, model: model}
}

// Infer implements Service.
func (o *Ollama) Infer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	var reply strings.Builder
	err := o.client.Chat(ctx, ollamaRequest(o.model, req), func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		kind := KindPermanent
		if isRetryableMessage(err.Error()) || ctx.Err() != nil {
			kind = KindTransient
		}
		return nil, NewError("ollama", kind, err)
	}

	return finish("ollama", req, strings.TrimSpace(reply.String()), o.model, start)
}

func ollamaRequest(model string, req Request) *api.ChatRequest {
	stream := false
	chat := &api.ChatRequest{
		Model:  model,
		Stream: &stream,
	}
	if system := systemPrompt(req); system != "" {
		chat.Messages = append(chat.Messages, api.Message{Role: "system", Content: system})
	}
	chat.Messages = append(chat.Messages, api.Message{Role: "user", Content: req.UserContent})

	if req.Structured() {
		chat.Format = json.RawMessage(`"json"`)
	}
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		chat.Options = options
	}
	return chat
}
