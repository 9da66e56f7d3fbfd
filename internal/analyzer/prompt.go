// internal/analyzer/prompt.go
package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/oncall/internal/protocol"
)

// maxMessageLen truncates very long payloads so one entry cannot crowd out the rest
const maxMessageLen = 2000

const systemPrompt = `You are an expert site reliability engineer reviewing cloud log entries. Identify issues, errors and patterns.

Focus on:
- Error patterns and their likely root causes
- Concrete, actionable fixes
- Severity and operational impact
- Code or configuration examples where they help

Respond with JSON only, in exactly this shape:
{
  "summary": "brief executive summary of the log analysis",
  "findings": [
    {
      "severity": "critical|high|medium|low|info",
      "title": "short title of the finding",
      "description": "detailed description of the issue",
      "affected_logs_count": 0,
      "suggested_fix": "concrete steps to fix or mitigate the issue",
      "code_example": "optional code or configuration example"
    }
  ],
  "recommendations": ["general recommendation"]
}

If nothing notable is present, return an empty findings list.`

// BuildPrompt renders the system and user prompt for entries and stats.
// Output is a pure function of its inputs.
func BuildPrompt(entries []protocol.LogEntry, stats protocol.Statistics) (system, user string) {
	var sb strings.Builder

	sb.WriteString("Analyze the following log entries and report findings and recommendations.\n\n")
	sb.WriteString("Statistics:\n")
	fmt.Fprintf(&sb, "- Total logs fetched: %d\n", stats.TotalLogs)
	fmt.Fprintf(&sb, "- Entries included below: %d\n", len(entries))
	fmt.Fprintf(&sb, "- Time range: %d hours\n", stats.TimeRangeHours)
	sb.WriteString("- Severity breakdown:\n")
	for _, sev := range protocol.Severities {
		if n := stats.BySeverity[sev]; n > 0 {
			fmt.Fprintf(&sb, "  - %s: %d\n", sev, n)
		}
	}
	if len(stats.MostCommonErrors) > 0 {
		sb.WriteString("- Most common errors:\n")
		for _, msg := range stats.MostCommonErrors {
			fmt.Fprintf(&sb, "  - %s\n", truncate(msg, 200))
		}
	}

	sb.WriteString("\nLogs:\n")
	for i, e := range entries {
		writeEntry(&sb, i+1, e)
	}
	sb.WriteString("\nProvide your analysis in the specified JSON format.")

	return systemPrompt, sb.String()
}

func writeEntry(sb *strings.Builder, n int, e protocol.LogEntry) {
	fmt.Fprintf(sb, "Log #%d:\n", n)
	fmt.Fprintf(sb, "  Timestamp: %s\n", formatTime(e.Timestamp))
	fmt.Fprintf(sb, "  Severity: %s\n", e.Severity)
	if e.LogName != "" {
		fmt.Fprintf(sb, "  Log Name: %s\n", e.LogName)
	}
	if e.Resource.Type != "" {
		fmt.Fprintf(sb, "  Resource Type: %s\n", e.Resource.Type)
	}
	if len(e.Labels) > 0 {
		keys := make([]string, 0, len(e.Labels))
		for k := range e.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + e.Labels[k]
		}
		fmt.Fprintf(sb, "  Labels: %s\n", strings.Join(pairs, ", "))
	}
	fmt.Fprintf(sb, "  Message: %s\n\n", truncate(e.Message, maxMessageLen))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(time.RFC3339)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
