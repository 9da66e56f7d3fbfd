// internal/pipeline/errors.go
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/oncall/internal/analyzer"
	"github.com/signalnine/oncall/internal/logsource"
)

// Code classifies a failed run for callers and metrics
type Code string

const (
	CodeSourceUnavailable  Code = "SOURCE_UNAVAILABLE"
	CodeSourceAuth         Code = "SOURCE_AUTH"
	CodeSourceBadPredicate Code = "SOURCE_BAD_PREDICATE"
	CodeProviderFatal      Code = "PROVIDER_FATAL"
	CodeProviderExhausted  Code = "PROVIDER_RETRIES_EXHAUSTED"
	CodeParseError         Code = "PARSE_ERROR"
	CodeRenderError        Code = "RENDER_ERROR"
	CodeCanceled           Code = "CANCELED"
	CodeInternal           Code = "INTERNAL"
)

// StageError is the single error type a failed run returns
type StageError struct {
	AnalysisID string
	Stage      State
	Code       Code
	// Attempts is the number of provider calls made, when the failure was in ANALYZING
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("analysis %s failed in %s (%s): %v", e.AnalysisID, e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AsStageError extracts a StageError from err
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func sourceCode(ctx context.Context, err error) Code {
	if canceled(ctx, err) {
		return CodeCanceled
	}
	var se *logsource.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case logsource.KindAuth:
			return CodeSourceAuth
		case logsource.KindBadPredicate:
			return CodeSourceBadPredicate
		case logsource.KindUnavailable:
			return CodeSourceUnavailable
		}
	}
	return CodeSourceUnavailable
}

func analyzerCode(ctx context.Context, err error) (Code, int) {
	if canceled(ctx, err) {
		var ce *analyzer.CallError
		if errors.As(err, &ce) {
			return CodeCanceled, ce.Attempts
		}
		return CodeCanceled, 0
	}
	var ce *analyzer.CallError
	if errors.As(err, &ce) {
		if ce.Exhausted {
			return CodeProviderExhausted, ce.Attempts
		}
		return CodeProviderFatal, ce.Attempts
	}
	var pe *analyzer.ParseError
	if errors.As(err, &pe) {
		return CodeParseError, pe.Attempts
	}
	return CodeInternal, 0
}
