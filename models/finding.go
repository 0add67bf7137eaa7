package models

// FindingKind categorises what class of issue a finding reports.
type FindingKind string

const (
	KindLint       FindingKind = "lint"
	KindSecurity   FindingKind = "security"
	KindType       FindingKind = "type"
	KindFormat     FindingKind = "format"
	KindDependency FindingKind = "dependency"
	KindComment    FindingKind = "comment"
)

// Finding is a single issue detected in one file. Immutable once produced;
// persisted in the same transaction as the owning job's terminal update.
type Finding struct {
	ID           int64       `json:"id"             db:"id"`
	JobID        int64       `json:"job_id"         db:"job_id"`
	FilePath     string      `json:"file"           db:"file_path"` // relative to repo root
	Line         int         `json:"line"           db:"line"`      // 1-based, 0 = unknown
	Column       int         `json:"column"         db:"col"`
	EndLine      int         `json:"end_line,omitempty"   db:"end_line"`
	EndColumn    int         `json:"end_column,omitempty" db:"end_col"`
	Kind         FindingKind `json:"kind"           db:"kind"`
	Code         string      `json:"code"           db:"code"` // tool-native rule code
	Message      string      `json:"message"        db:"message"`
	Severity     Severity    `json:"severity"       db:"severity"`
	Language     string      `json:"language"       db:"language"`
	Category     string      `json:"category"       db:"category"`
	Tool         string      `json:"tool"           db:"tool"`
	Fixable      bool        `json:"fixable"        db:"fixable"`
	SuggestedFix string      `json:"suggested_fix,omitempty" db:"suggested_fix"`
	DocURL       string      `json:"doc_url,omitempty"       db:"doc_url"`
}
