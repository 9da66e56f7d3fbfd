// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/signalnine/oncall/internal/metrics"
	"github.com/signalnine/oncall/internal/protocol"
)

const (
	emptySummary        = "No logs found in the specified time range."
	emptyRecommendation = "Check your log source configuration and filters."
)

// Options tunes a single analysis call
type Options struct {
	MaxEntries     int
	MaxAttempts    int
	Timeout        time.Duration // per attempt
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Temperature    float64
	MaxTokens      int
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// CallError is returned when the provider could not produce a response
type CallError struct {
	Provider string
	Attempts int
	// Exhausted is true when every attempt failed transiently
	Exhausted bool
	Err       error
}

func (e *CallError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Analyzer turns a fetched entry set into validated findings using one provider
type Analyzer struct {
	provider   Provider
	opts       Options
	log        zerolog.Logger
	metrics    *metrics.Handler
	newBackOff func() backoff.BackOff
}

// New creates an analyzer. m may be nil.
func New(provider Provider, opts Options, log zerolog.Logger, m *metrics.Handler) *Analyzer {
	a := &Analyzer{
		provider: provider,
		opts:     opts.withDefaults(),
		log:      log.With().Str("component", "analyzer").Str("provider", provider.Name()).Logger(),
		metrics:  m,
	}
	a.newBackOff = a.exponential
	return a
}

// WithBackOff replaces the retry schedule; fn is called once per Analyze
func (a *Analyzer) WithBackOff(fn func() backoff.BackOff) *Analyzer {
	a.newBackOff = fn
	return a
}

func (a *Analyzer) exponential() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.InitialBackoff
	b.MaxInterval = a.opts.MaxBackoff
	b.MaxElapsedTime = 0
	// waits must grow strictly until MaxInterval
	b.RandomizationFactor = 0
	return b
}

// Analyze samples entries, prompts the provider and parses its reply.
// With no entries the provider is not called.
func (a *Analyzer) Analyze(ctx context.Context, entries []protocol.LogEntry, stats protocol.Statistics) (*Analysis, error) {
	if len(entries) == 0 {
		return &Analysis{
			Summary:         emptySummary,
			Findings:        []protocol.Finding{},
			Recommendations: []string{emptyRecommendation},
		}, nil
	}

	sample := Sample(entries, a.opts.MaxEntries)
	system, user := BuildPrompt(sample, stats)
	prompt := Prompt{
		System:      system,
		User:        user,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}

	a.log.Info().Int("entries", len(entries)).Int("sampled", len(sample)).Msg("Requesting analysis")

	raw, attempts, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result, err := ParseResponse(raw)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Attempts = attempts
		}
		a.log.Error().Err(err).Str("response", truncate(raw, 500)).Msg("Unparsable model response")
		return nil, err
	}
	result.Attempts = attempts

	if result.Dropped > 0 {
		a.log.Warn().Int("dropped", result.Dropped).Int("kept", len(result.Findings)).Msg("Discarded invalid findings")
		a.metrics.AddFindingsDropped(result.Dropped)
	}
	return result, nil
}

func (a *Analyzer) complete(ctx context.Context, prompt Prompt) (string, int, error) {
	var (
		raw      string
		attempts int
		lastErr  error
	)

	op := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()

		text, err := a.provider.Complete(callCtx, prompt)
		if err == nil {
			a.metrics.IncProviderAttempt(a.provider.Name(), "success")
			raw = text
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			a.metrics.IncProviderAttempt(a.provider.Name(), "fatal")
			return backoff.Permanent(err)
		}
		a.metrics.IncProviderAttempt(a.provider.Name(), "transient")
		return err
	}

	notify := func(err error, wait time.Duration) {
		a.log.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", wait).Msg("Provider call failed, retrying")
	}

	// WithMaxRetries treats 0 as unlimited
	var schedule backoff.BackOff = &backoff.StopBackOff{}
	if a.opts.MaxAttempts > 1 {
		schedule = backoff.WithMaxRetries(a.newBackOff(), uint64(a.opts.MaxAttempts-1))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(schedule, ctx), notify)
	if err == nil {
		return raw, attempts, nil
	}

	if ctx.Err() != nil {
		return "", attempts, &CallError{Provider: a.provider.Name(), Attempts: attempts, Err: ctx.Err()}
	}
	if lastErr == nil {
		lastErr = err
	}
	exhausted := IsTransient(lastErr)
	a.log.Error().Err(lastErr).Int("attempts", attempts).Bool("exhausted", exhausted).Msg("Provider call failed")
	return "", attempts, &CallError{
		Provider:  a.provider.Name(),
		Attempts:  attempts,
		Exhausted: exhausted,
		Err:       lastErr,
	}
}

// IsCallError reports whether err came from the provider rather than from parsing
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}
