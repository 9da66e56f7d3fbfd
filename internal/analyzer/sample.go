// internal/analyzer/sample.go
package analyzer

import (
	"sort"

	"github.com/signalnine/oncall/internal/protocol"
)

// DefaultMaxEntries bounds how many entries are serialized into one prompt
const DefaultMaxEntries = 50

// Sample picks at most max entries, most severe first, newest first within a
// severity, fetched order on full ties. The input slice is not modified.
func Sample(entries []protocol.LogEntry, max int) []protocol.LogEntry {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	out := make([]protocol.LogEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if len(out) > max {
		out = out[:max]
	}
	return out
}
