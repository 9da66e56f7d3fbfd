// internal/report/report_test.go
package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/oncall/internal/protocol"
)

func sampleDocument() Document {
	return Document{
		AnalysisID: "test-123",
		Timestamp:  time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Summary:    "Database is struggling",
		Statistics: protocol.Statistics{
			TotalLogs: 150,
			BySeverity: map[protocol.Severity]int{
				protocol.SeverityError:   45,
				protocol.SeverityWarning: 30,
				protocol.SeverityInfo:    75,
			},
			TimeRangeHours:   24,
			MostCommonErrors: []string{"db timeout"},
		},
		Findings: []protocol.Finding{
			{Severity: protocol.SeverityWarning, Title: "Slow requests", Description: "p99 up", AffectedLogsCount: 30, SuggestedFix: "Scale out"},
			{Severity: protocol.SeverityCritical, Title: "DB down", Description: "Connection refused", AffectedLogsCount: 5, SuggestedFix: "Restart", CodeExample: "pool_size: 20\n"},
			{Severity: protocol.SeverityWarning, Title: "Retries", Description: "Client retries", AffectedLogsCount: 10, SuggestedFix: "Back off"},
		},
		Recommendations: []string{"Add alerts", "Tune the pool"},
	}
}

func TestMarkdownLayout(t *testing.T) {
	md := Markdown(sampleDocument())

	assert.True(t, strings.HasPrefix(md, "# Log Analysis Report\n"))
	for _, want := range []string{
		"test-123",
		"2026-01-15T10:30:00Z",
		"## Executive Summary\n\nDatabase is struggling",
		"| ERROR | 45 |",
		"| **Total** | 150 |",
		"last 24 hours",
		"- `db timeout`",
		"```\npool_size: 20\n```",
		"1. Add alerts\n2. Tune the pool\n",
	} {
		assert.Contains(t, md, want)
	}

	// severity rows descend
	assert.Less(t, strings.Index(md, "| ERROR |"), strings.Index(md, "| WARNING |"))
	assert.Less(t, strings.Index(md, "| WARNING |"), strings.Index(md, "| INFO |"))
}

func TestMarkdownFindingsSortedStable(t *testing.T) {
	md := Markdown(sampleDocument())

	critical := strings.Index(md, "### 1. [CRITICAL] DB down")
	slow := strings.Index(md, "### 2. [WARNING] Slow requests")
	retries := strings.Index(md, "### 3. [WARNING] Retries")
	require.True(t, critical >= 0 && slow >= 0 && retries >= 0, md)
	assert.Less(t, critical, slow)
	assert.Less(t, slow, retries)
}

func TestMarkdownEmpty(t *testing.T) {
	md := Markdown(Document{AnalysisID: "x", Summary: "No logs found in the specified time range."})

	assert.Contains(t, md, "No issues found.")
	assert.Contains(t, md, "| **Total** | 0 |")
}

func TestJSONRoundTrip(t *testing.T) {
	doc := sampleDocument()

	data, err := JSON(doc)
	require.NoError(t, err)

	got, err := ParseJSON(data)
	require.NoError(t, err)

	assert.Equal(t, doc.Statistics, got.Statistics)
	assert.Equal(t, doc.Findings, got.Findings, "JSON keeps analyzer order")
	assert.Equal(t, doc.Recommendations, got.Recommendations)
	assert.True(t, doc.Timestamp.Equal(got.Timestamp))
	assert.Contains(t, string(data), `"ERROR": 45`)
}

func TestRenderWritesFile(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(filepath.Join(dir, "reports"))

	text, path, err := r.Render(sampleDocument(), protocol.FormatMarkdown)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "reports", "analysis_test-123_20260115_103000.md"), path)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, text, onDisk)

	_, path, err = r.Render(sampleDocument(), protocol.FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "analysis_test-123_20260115_103000.json"))
}

func TestRenderUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir)

	_, path, err := r.Render(sampleDocument(), protocol.OutputFormat("pdf"))

	require.Error(t, err)
	assert.Empty(t, path)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestPublishLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	// a directory squatting on the target name makes the rename fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "report.md"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md", "keep"), []byte("x"), 0644))

	path, err := Publish(dir, "report.md", []byte("content"))

	require.Error(t, err)
	assert.Empty(t, path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.md", entries[0].Name())
}

func TestPublishReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	_, err := Publish(dir, "a.md", []byte("old"))
	require.NoError(t, err)

	path, err := Publish(dir, "a.md", []byte("new"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1)
}

func TestOneLineKeepsRunes(t *testing.T) {
	// 199 ASCII bytes then a 3-byte rune straddling the cut
	msg := strings.Repeat("a", 199) + "€ disk full"

	got := oneLine(msg)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 199)+"...", got)
	assert.Equal(t, "short line", oneLine("short\nline"))
}
