// internal/analyzer/ollama.go
package analyzer

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "qwen2.5-coder:3b-instruct"
)

// Ollama calls a local Ollama server's generate endpoint in JSON mode
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a client; empty baseURL and model fall back to defaults
func NewOllama(baseURL, model string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

// Name identifies the backend
func (c *Ollama) Name() string {
	return "ollama"
}

type generateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system,omitempty"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends one non-streaming generate request
func (c *Ollama) Complete(ctx context.Context, p Prompt) (string, error) {
	opts := map[string]interface{}{"temperature": p.Temperature}
	if p.MaxTokens > 0 {
		opts["num_predict"] = p.MaxTokens
	}
	body := generateRequest{
		Model:   c.model,
		System:  p.System,
		Prompt:  p.User,
		Stream:  false,
		Format:  "json",
		Options: opts,
	}

	var resp generateResponse
	if err := postJSON(ctx, c.client, c.Name(), c.baseURL+"/api/generate", nil, body, &resp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", &ProviderError{Provider: c.Name(), Err: errors.New("empty response from model")}
	}
	return text, nil
}
