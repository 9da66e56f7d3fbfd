// internal/filter/filter.go
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/signalnine/oncall/internal/protocol"
)

// TimestampLayout is the bound format accepted by Cloud Logging
const TimestampLayout = "2006-01-02T15:04:05Z"

// Params are the inputs to Build
type Params struct {
	Now           time.Time
	HoursBack     int
	Query         string
	DefaultQuery  string // used when Query is empty
	FocusOnErrors bool
}

var (
	// a leading "." means a payload field such as jsonPayload.severity
	severityClause = regexp.MustCompile(`(?i)(^|[^.\w])severity\s*(>=|<=|!=|=|>|<|:)`)
	lowerBound     = regexp.MustCompile(`timestamp\s*>=\s*"([^"]+)"`)
	minSeverity    = regexp.MustCompile(`(?i)(?:^|[^.\w])severity\s*>=\s*"?([A-Za-z]+)"?`)
)

// Build returns the predicate for a time window, an optional user query and the error focus flag.
// The timestamp lower bound is always present; a user query is ANDed in, never dropped.
func Build(p Params) string {
	start := p.Now.UTC().Add(-time.Duration(p.HoursBack) * time.Hour)
	clauses := []string{fmt.Sprintf(`timestamp >= "%s"`, start.Format(TimestampLayout))}

	query := strings.TrimSpace(p.Query)
	if query == "" {
		query = strings.TrimSpace(p.DefaultQuery)
	}
	if query != "" {
		clauses = append(clauses, "("+query+")")
	}

	if p.FocusOnErrors && !ConstrainsSeverity(query) {
		clauses = append(clauses, "severity >= WARNING")
	}

	return strings.Join(clauses, " AND ")
}

// ConstrainsSeverity reports whether a query already has a severity comparison
func ConstrainsSeverity(query string) bool {
	return severityClause.MatchString(query)
}

// LowerBound extracts the timestamp lower bound from a predicate built by Build
func LowerBound(predicate string) (time.Time, bool) {
	m := lowerBound.FindStringSubmatch(predicate)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MinSeverity extracts a "severity >= LEVEL" floor from a predicate
func MinSeverity(predicate string) (protocol.Severity, bool) {
	m := minSeverity.FindStringSubmatch(predicate)
	if m == nil {
		return protocol.SeverityUnknown, false
	}
	sev, err := protocol.ParseSeverity(m[1])
	if err != nil {
		return protocol.SeverityUnknown, false
	}
	return sev, true
}
