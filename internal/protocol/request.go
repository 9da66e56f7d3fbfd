// internal/protocol/request.go
package protocol

import (
	"fmt"
	"strings"
)

// MaxHoursBack is the widest lookback window a request may ask for (one week)
const MaxHoursBack = 168

// OutputFormat selects the report encoding
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
)

// Extension returns the file extension used for reports in this format
func (f OutputFormat) Extension() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".md"
}

// AnalysisRequest describes which logs to analyze and how to report on them
type AnalysisRequest struct {
	HoursBack     int          `json:"hours_back"`
	FilterQuery   string       `json:"filter_query,omitempty"`
	MaxLogs       int          `json:"max_logs,omitempty"`
	FocusOnErrors bool         `json:"focus_on_errors"`
	OutputFormat  OutputFormat `json:"output_format,omitempty"`
}

// RequestError reports an invalid request field
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WithDefaults returns a copy with max_logs and output_format filled in when absent
func (r AnalysisRequest) WithDefaults(defaultLimit int) AnalysisRequest {
	if r.MaxLogs == 0 {
		r.MaxLogs = defaultLimit
	}
	if r.OutputFormat == "" {
		r.OutputFormat = FormatMarkdown
	}
	r.OutputFormat = OutputFormat(strings.ToLower(string(r.OutputFormat)))
	return r
}

// Validate checks the request against the configured max_logs ceiling
func (r AnalysisRequest) Validate(maxLogsCeiling int) error {
	if r.HoursBack < 1 || r.HoursBack > MaxHoursBack {
		return &RequestError{Field: "hours_back", Reason: fmt.Sprintf("must be between 1 and %d", MaxHoursBack)}
	}
	if r.MaxLogs < 1 {
		return &RequestError{Field: "max_logs", Reason: "must be positive"}
	}
	if maxLogsCeiling > 0 && r.MaxLogs > maxLogsCeiling {
		return &RequestError{Field: "max_logs", Reason: fmt.Sprintf("must not exceed %d", maxLogsCeiling)}
	}
	switch r.OutputFormat {
	case FormatMarkdown, FormatJSON:
	default:
		return &RequestError{Field: "output_format", Reason: fmt.Sprintf("unsupported format %q", r.OutputFormat)}
	}
	return nil
}
