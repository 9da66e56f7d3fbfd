// internal/analyzer/anthropic.go
package analyzer

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	DefaultAnthropicURL   = "https://api.anthropic.com"
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	anthropicVersion      = "2023-06-01"
)

// Anthropic calls the Messages API
type Anthropic struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewAnthropic creates a client; empty baseURL and model fall back to defaults
func NewAnthropic(baseURL, model, apiKey string, client *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  client,
	}
}

// Name identifies the backend
func (c *Anthropic) Name() string {
	return "anthropic"
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends one Messages API request and joins the text blocks of the reply
func (c *Anthropic) Complete(ctx context.Context, p Prompt) (string, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := messagesRequest{
		Model:       c.model,
		System:      p.System,
		Messages:    []chatMessage{{Role: "user", Content: p.User}},
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
	}

	var resp messagesResponse
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := postJSON(ctx, c.client, c.Name(), c.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &ProviderError{Provider: c.Name(), Err: errors.New("no text content in response")}
	}
	return sb.String(), nil
}
