// internal/analyzer/openai.go
package analyzer

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "gpt-4o"
)

// OpenAI calls an OpenAI-compatible Chat Completions API
type OpenAI struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewOpenAI creates a client; empty baseURL and model fall back to the public API defaults
func NewOpenAI(baseURL, model, apiKey string, client *http.Client) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  client,
	}
}

// Name identifies the backend
func (c *OpenAI) Name() string {
	return "openai"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion request in JSON mode
func (c *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature:    p.Temperature,
		MaxTokens:      p.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.client, c.Name(), c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: c.Name(), Err: errors.New("empty response from API")}
	}
	return resp.Choices[0].Message.Content, nil
}
