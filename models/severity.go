package models

// Severity represents how serious a finding is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Weight returns a numeric weight for sorting (higher = more severe).
func (s Severity) Weight() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// MapSeverity normalises tool-specific severity strings to Severity.
func MapSeverity(raw string) Severity {
	switch raw {
	case "error", "ERROR", "critical", "CRITICAL", "high", "HIGH", "fatal":
		return SeverityError
	case "warning", "WARNING", "medium", "MEDIUM", "moderate", "refactor", "convention":
		return SeverityWarning
	case "info", "INFO", "low", "LOW", "note", "style":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}
