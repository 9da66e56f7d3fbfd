// internal/analyzer/provider.go
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/signalnine/oncall/internal/config"
)

// Prompt is a provider-agnostic request for a structured (JSON) completion
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider is the text-completion-with-structured-output capability the analyzer needs
type Provider interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// ProviderError is a failed provider call. Transient errors are worth retrying.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a timeout, connection failure or rate limit
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// transientStatus lists HTTP statuses that indicate overload rather than a bad request
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // Anthropic "overloaded"
		return true
	}
	return false
}

// NewProvider builds the backend named by cfg.Provider
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	client := newHTTPClient(cfg.Timeout)
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.Model, cfg.APIKey, client), nil
	case "anthropic":
		return NewAnthropic(cfg.BaseURL, cfg.Model, cfg.APIKey, client), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model, client), nil
	default:
		return nil, &config.FieldError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported value %q", cfg.Provider)}
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// postJSON sends body to url and decodes a 200 response into out
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return &ProviderError{Provider: provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return &ProviderError{Provider: provider, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Connection failures and timeouts are "unavailable"; caller cancellation is not
		transient := ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded)
		return &ProviderError{Provider: provider, Transient: transient, Err: fmt.Errorf("connection failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Transient:  transientStatus(resp.StatusCode),
			Err:        fmt.Errorf("API error: %s", strings.TrimSpace(string(msg))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: provider, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
