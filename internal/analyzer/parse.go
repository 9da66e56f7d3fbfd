// internal/analyzer/parse.go
package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/signalnine/oncall/internal/protocol"
)

const defaultSummary = "Analysis completed"

// ParseError means the model's response held no usable JSON object
type ParseError struct {
	Raw string
	// Attempts is how many provider calls it took to get Raw
	Attempts int
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Analysis is the validated content of one model response
type Analysis struct {
	Summary         string
	Findings        []protocol.Finding
	Recommendations []string
	// Dropped counts findings rejected by validation
	Dropped int
	// Attempts is the number of provider calls made
	Attempts int
}

// ParseResponse extracts and validates the analysis embedded in raw.
// Invalid findings are dropped individually; only a response with no parsable
// top-level object is an error.
func ParseResponse(raw string) (*Analysis, error) {
	body, err := extractObject(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	a := &Analysis{
		Summary:         defaultSummary,
		Findings:        []protocol.Finding{},
		Recommendations: []string{},
	}

	if v, ok := doc["summary"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) != "" {
			a.Summary = s
		}
	}

	if v, ok := doc["findings"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("findings is not a list: %w", err)}
		}
		for _, item := range items {
			f, err := parseFinding(item)
			if err != nil {
				a.Dropped++
				continue
			}
			a.Findings = append(a.Findings, f)
		}
	}

	if v, ok := doc["recommendations"]; ok {
		var items []json.RawMessage
		if json.Unmarshal(v, &items) == nil {
			for _, item := range items {
				var s string
				if json.Unmarshal(item, &s) == nil && strings.TrimSpace(s) != "" {
					a.Recommendations = append(a.Recommendations, s)
				}
			}
		}
	}

	return a, nil
}

type rawFinding struct {
	Severity          *string  `json:"severity"`
	Title             *string  `json:"title"`
	Description       *string  `json:"description"`
	AffectedLogsCount *float64 `json:"affected_logs_count"`
	SuggestedFix      *string  `json:"suggested_fix"`
	CodeExample       *string  `json:"code_example"`
}

func parseFinding(item json.RawMessage) (protocol.Finding, error) {
	var rf rawFinding
	if err := json.Unmarshal(item, &rf); err != nil {
		return protocol.Finding{}, err
	}

	switch {
	case rf.Severity == nil:
		return protocol.Finding{}, errors.New("missing severity")
	case rf.Title == nil || strings.TrimSpace(*rf.Title) == "":
		return protocol.Finding{}, errors.New("missing title")
	case rf.Description == nil || strings.TrimSpace(*rf.Description) == "":
		return protocol.Finding{}, errors.New("missing description")
	case rf.SuggestedFix == nil || strings.TrimSpace(*rf.SuggestedFix) == "":
		return protocol.Finding{}, errors.New("missing suggested_fix")
	case rf.AffectedLogsCount == nil:
		return protocol.Finding{}, errors.New("missing affected_logs_count")
	}

	count := *rf.AffectedLogsCount
	if count < 0 || count != math.Trunc(count) || count > math.MaxInt32 {
		return protocol.Finding{}, fmt.Errorf("affected_logs_count %v is not a non-negative integer", count)
	}

	f := protocol.Finding{
		Severity:          protocol.NormalizeSeverity(*rf.Severity),
		Title:             *rf.Title,
		Description:       *rf.Description,
		AffectedLogsCount: int(count),
		SuggestedFix:      *rf.SuggestedFix,
	}
	if rf.CodeExample != nil {
		f.CodeExample = *rf.CodeExample
	}
	return f, nil
}

// extractObject strips Markdown fences and returns the outermost {...} span
func extractObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errors.New("no JSON object in response")
	}
	return s[start : end+1], nil
}
