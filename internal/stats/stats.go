// internal/stats/stats.go
package stats

import (
	"sort"

	"github.com/signalnine/oncall/internal/protocol"
)

// DefaultTopErrors is used when a non-positive topN is passed to Aggregate
const DefaultTopErrors = 5

// Aggregate reduces the fetched entries to Statistics. It is pure and accepts an empty slice.
// MostCommonErrors holds distinct messages of ERROR-and-above entries, most frequent first,
// ties broken by first appearance.
func Aggregate(entries []protocol.LogEntry, hoursBack, topN int) protocol.Statistics {
	if topN <= 0 {
		topN = DefaultTopErrors
	}

	st := protocol.Statistics{
		TotalLogs:        len(entries),
		BySeverity:       make(map[protocol.Severity]int),
		TimeRangeHours:   hoursBack,
		MostCommonErrors: []string{},
	}

	type tally struct {
		msg   string
		count int
		first int
	}
	tallies := make(map[string]*tally)

	for i, e := range entries {
		st.BySeverity[e.Severity]++

		if !e.Timestamp.IsZero() {
			if st.Earliest.IsZero() || e.Timestamp.Before(st.Earliest) {
				st.Earliest = e.Timestamp
			}
			if st.Latest.IsZero() || e.Timestamp.After(st.Latest) {
				st.Latest = e.Timestamp
			}
		}

		if e.Severity < protocol.SeverityError || e.Message == "" {
			continue
		}
		if t, ok := tallies[e.Message]; ok {
			t.count++
		} else {
			tallies[e.Message] = &tally{msg: e.Message, count: 1, first: i}
		}
	}

	ranked := make([]*tally, 0, len(tallies))
	for _, t := range tallies {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})

	for i := 0; i < len(ranked) && i < topN; i++ {
		st.MostCommonErrors = append(st.MostCommonErrors, ranked[i].msg)
	}
	return st
}
