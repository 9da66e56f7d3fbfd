// internal/protocol/types.go
package protocol

import (
	"time"
)

// Resource describes the monitored resource that emitted a log entry
type Resource struct {
	Type   string            `json:"type,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// LogEntry is one record fetched from the log source
type LogEntry struct {
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	LogName   string            `json:"log_name,omitempty"`
	Resource  Resource          `json:"resource,omitzero"`
	Labels    map[string]string `json:"labels,omitempty"`
	InsertID  string            `json:"insert_id,omitempty"`
	Message   string            `json:"message"`
}

// Statistics summarizes the fetched entry sequence
type Statistics struct {
	TotalLogs        int              `json:"total_logs"`
	BySeverity       map[Severity]int `json:"by_severity"`
	TimeRangeHours   int              `json:"time_range_hours"`
	MostCommonErrors []string         `json:"most_common_errors"`
	Earliest         time.Time        `json:"earliest,omitzero"`
	Latest           time.Time        `json:"latest,omitzero"`
}

// Finding is one validated diagnostic conclusion produced by the analyzer
type Finding struct {
	Severity          Severity `json:"severity"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	AffectedLogsCount int      `json:"affected_logs_count"`
	SuggestedFix      string   `json:"suggested_fix"`
	CodeExample       string   `json:"code_example,omitempty"`
}

// AnalysisResult is the outcome of one full pipeline run
type AnalysisResult struct {
	AnalysisID      string     `json:"analysis_id"`
	Timestamp       time.Time  `json:"timestamp"`
	Statistics      Statistics `json:"statistics"`
	Findings        []Finding  `json:"findings"`
	Summary         string     `json:"summary"`
	DocumentPath    string     `json:"document_path,omitempty"`
	Recommendations []string   `json:"recommendations"`
}
