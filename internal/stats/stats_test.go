// internal/stats/stats_test.go
package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/signalnine/oncall/internal/protocol"
)

func entry(sev protocol.Severity, msg string, minute int) protocol.LogEntry {
	return protocol.LogEntry{
		Severity:  sev,
		Message:   msg,
		Timestamp: time.Date(2026, 3, 10, 12, minute, 0, 0, time.UTC),
	}
}

func TestAggregateEmpty(t *testing.T) {
	st := Aggregate(nil, 24, 5)

	assert.Equal(t, 0, st.TotalLogs)
	assert.Empty(t, st.BySeverity)
	assert.NotNil(t, st.BySeverity)
	assert.Empty(t, st.MostCommonErrors)
	assert.NotNil(t, st.MostCommonErrors)
	assert.Equal(t, 24, st.TimeRangeHours)
	assert.True(t, st.Earliest.IsZero())
}

func TestAggregateCountsMatchTotal(t *testing.T) {
	var entries []protocol.LogEntry
	for i := 0; i < 45; i++ {
		entries = append(entries, entry(protocol.SeverityError, "db timeout", i%60))
	}
	for i := 0; i < 30; i++ {
		entries = append(entries, entry(protocol.SeverityWarning, "slow request", i%60))
	}
	for i := 0; i < 75; i++ {
		entries = append(entries, entry(protocol.SeverityInfo, "ok", i%60))
	}
	entries = append(entries, entry(protocol.SeverityUnknown, "mystery", 5))

	st := Aggregate(entries, 24, 5)

	sum := 0
	for _, n := range st.BySeverity {
		sum += n
	}
	assert.Equal(t, len(entries), st.TotalLogs)
	assert.Equal(t, st.TotalLogs, sum)
	assert.Equal(t, 45, st.BySeverity[protocol.SeverityError])
	assert.Equal(t, 30, st.BySeverity[protocol.SeverityWarning])
	assert.Equal(t, 75, st.BySeverity[protocol.SeverityInfo])
	assert.Equal(t, 1, st.BySeverity[protocol.SeverityUnknown])
	assert.Equal(t, []string{"db timeout"}, st.MostCommonErrors)
}

func TestAggregateMostCommonErrorsTieBreak(t *testing.T) {
	entries := []protocol.LogEntry{
		entry(protocol.SeverityError, "b", 1),
		entry(protocol.SeverityCritical, "a", 2),
		entry(protocol.SeverityError, "c", 3),
		entry(protocol.SeverityError, "a", 4),
		entry(protocol.SeverityError, "c", 5),
		entry(protocol.SeverityError, "b", 6),
		entry(protocol.SeverityError, "d", 7),
		entry(protocol.SeverityWarning, "w", 8),
		entry(protocol.SeverityWarning, "w", 9),
		entry(protocol.SeverityWarning, "w", 10),
	}

	st := Aggregate(entries, 1, 3)

	// a, b, c all occur twice; first-seen order is b, a, c
	assert.Equal(t, []string{"b", "a", "c"}, st.MostCommonErrors)
}

func TestAggregateTimeBounds(t *testing.T) {
	entries := []protocol.LogEntry{
		entry(protocol.SeverityInfo, "x", 30),
		entry(protocol.SeverityInfo, "x", 10),
		entry(protocol.SeverityInfo, "x", 50),
	}

	st := Aggregate(entries, 1, 0)

	assert.Equal(t, time.Date(2026, 3, 10, 12, 10, 0, 0, time.UTC), st.Earliest)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 50, 0, 0, time.UTC), st.Latest)
}

func TestAggregateIsDeterministic(t *testing.T) {
	entries := []protocol.LogEntry{
		entry(protocol.SeverityError, "x", 1),
		entry(protocol.SeverityError, "y", 2),
		entry(protocol.SeverityError, "z", 3),
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, []string{"x", "y", "z"}, Aggregate(entries, 1, 5).MostCommonErrors)
	}
}
