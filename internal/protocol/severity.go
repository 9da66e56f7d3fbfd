// internal/protocol/severity.go
package protocol

import (
	"fmt"
	"strings"
)

// Severity is the ordered level shared by log entries and findings.
// SeverityUnknown sorts below every recognized level.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Severities lists the recognized levels from highest to lowest, followed by SeverityUnknown
var Severities = []Severity{
	SeverityCritical,
	SeverityError,
	SeverityWarning,
	SeverityInfo,
	SeverityDebug,
	SeverityUnknown,
}

var severityNames = map[Severity]string{
	SeverityUnknown:  "UNKNOWN",
	SeverityDebug:    "DEBUG",
	SeverityInfo:     "INFO",
	SeverityWarning:  "WARNING",
	SeverityError:    "ERROR",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return severityNames[SeverityUnknown]
}

// MarshalText implements encoding.TextMarshaler so Severity works as a JSON value and map key
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts only the canonical names produced by MarshalText
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity parses a canonical level name, case-insensitively
func ParseSeverity(name string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for sev, n := range severityNames {
		if n == upper {
			return sev, nil
		}
	}
	return SeverityUnknown, fmt.Errorf("unknown severity %q", name)
}

// NormalizeSeverity maps a free-form severity label (as returned by a model) onto the
// enumeration. Unrecognized labels map to SeverityDebug, the lowest recognized level.
func NormalizeSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical", "fatal", "emergency", "alert":
		return SeverityCritical
	case "high", "error", "err":
		return SeverityError
	case "medium", "warning", "warn":
		return SeverityWarning
	case "low", "info", "notice":
		return SeverityInfo
	default:
		return SeverityDebug
	}
}
