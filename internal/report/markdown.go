// internal/report/markdown.go
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/signalnine/oncall/internal/protocol"
)

// Markdown renders doc as a human-readable report.
// Findings are listed most severe first; equal severities keep their order.
func Markdown(doc Document) string {
	var sb strings.Builder

	sb.WriteString("# Log Analysis Report\n\n")
	sb.WriteString(fmt.Sprintf("**Analysis ID:** %s\n", doc.AnalysisID))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n\n", doc.Timestamp.UTC().Format(time.RFC3339)))

	sb.WriteString("## Executive Summary\n\n")
	sb.WriteString(doc.Summary)
	sb.WriteString("\n\n")

	writeStatistics(&sb, doc.Statistics)
	writeFindings(&sb, doc.Findings)

	sb.WriteString("## Recommendations\n\n")
	if len(doc.Recommendations) == 0 {
		sb.WriteString("No recommendations.\n")
	}
	for i, rec := range doc.Recommendations {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, rec))
	}

	return sb.String()
}

func writeStatistics(sb *strings.Builder, st protocol.Statistics) {
	sb.WriteString("## Statistics\n\n")
	sb.WriteString("| Severity | Count |\n")
	sb.WriteString("|----------|-------|\n")
	for _, sev := range protocol.Severities {
		if n := st.BySeverity[sev]; n > 0 {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", sev, n))
		}
	}
	sb.WriteString(fmt.Sprintf("| **Total** | %d |\n\n", st.TotalLogs))

	sb.WriteString(fmt.Sprintf("**Time range:** last %d hours", st.TimeRangeHours))
	if !st.Earliest.IsZero() {
		sb.WriteString(fmt.Sprintf(" (%s to %s)", st.Earliest.UTC().Format(time.RFC3339), st.Latest.UTC().Format(time.RFC3339)))
	}
	sb.WriteString("\n\n")

	if len(st.MostCommonErrors) > 0 {
		sb.WriteString("**Most common errors:**\n\n")
		for _, msg := range st.MostCommonErrors {
			sb.WriteString(fmt.Sprintf("- `%s`\n", oneLine(msg)))
		}
		sb.WriteString("\n")
	}
}

func writeFindings(sb *strings.Builder, findings []protocol.Finding) {
	sb.WriteString("## Findings\n\n")
	if len(findings) == 0 {
		sb.WriteString("No issues found.\n\n")
		return
	}

	sorted := SortFindings(findings)
	for i, f := range sorted {
		sb.WriteString(fmt.Sprintf("### %d. [%s] %s\n\n", i+1, f.Severity, f.Title))
		sb.WriteString(fmt.Sprintf("**Affected logs:** %d\n\n", f.AffectedLogsCount))
		sb.WriteString(f.Description)
		sb.WriteString("\n\n")
		sb.WriteString("**Suggested fix:** ")
		sb.WriteString(f.SuggestedFix)
		sb.WriteString("\n\n")
		if f.CodeExample != "" {
			sb.WriteString("```\n")
			sb.WriteString(strings.TrimRight(f.CodeExample, "\n"))
			sb.WriteString("\n```\n\n")
		}
	}
}

// SortFindings returns findings ordered by severity descending, stable on ties
func SortFindings(findings []protocol.Finding) []protocol.Finding {
	out := make([]protocol.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity > out[j].Severity
	})
	return out
}

const maxLineBytes = 200

// oneLine flattens s for an inline code span, cutting on a rune boundary
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "`", "'")
	if len(s) <= maxLineBytes {
		return s
	}
	cut := maxLineBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
