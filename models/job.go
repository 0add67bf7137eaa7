package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is the durable record of one analysis request. The summary, webhook
// configuration and metadata columns hold JSON text; use the accessors.
type Job struct {
	ID          int64      `json:"id"           db:"id"`
	RepoURL     string     `json:"repo_url"     db:"repo_url"`
	Team        string     `json:"team"         db:"team"`
	Leader      string     `json:"leader"       db:"leader"`
	Branch      string     `json:"branch"       db:"branch"`
	Tag         string     `json:"tag"          db:"tag"`
	CommitSHA   string     `json:"commit_sha"   db:"commit_sha"` // commit actually analyzed
	Status      JobStatus  `json:"status"       db:"status"`
	Priority    int        `json:"priority"     db:"priority"`
	SummaryJSON string     `json:"-"            db:"summary"`
	WebhookJSON string     `json:"-"            db:"webhook"`
	MetaJSON    string     `json:"-"            db:"metadata"`
	ErrorMsg    string     `json:"error_msg,omitempty" db:"error_msg"`
	DurationMs  int64      `json:"duration_ms"  db:"duration_ms"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"   db:"updated_at"`
	StartedAt   *time.Time `json:"started_at"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// Summary decodes the summary column. Returns nil for jobs without one.
func (j *Job) Summary() (*Summary, error) {
	if j.SummaryJSON == "" {
		return nil, nil
	}
	var s Summary
	if err := json.Unmarshal([]byte(j.SummaryJSON), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSummary encodes s into the summary column.
func (j *Job) SetSummary(s *Summary) error {
	if s == nil {
		j.SummaryJSON = ""
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	j.SummaryJSON = string(b)
	return nil
}

// Webhook decodes the webhook column. Returns nil when none is configured.
func (j *Job) Webhook() (*WebhookConfig, error) {
	if j.WebhookJSON == "" {
		return nil, nil
	}
	var w WebhookConfig
	if err := json.Unmarshal([]byte(j.WebhookJSON), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Summary aggregates one completed analysis.
type Summary struct {
	TotalFilesScanned int            `json:"total_files_scanned"`
	TotalFindings     int            `json:"total_findings"`
	ByLanguage        map[string]int `json:"findings_by_language,omitempty"`
	BySeverity        map[string]int `json:"findings_by_severity,omitempty"`
	ByKind            map[string]int `json:"findings_by_kind,omitempty"`
	ByCategory        map[string]int `json:"findings_by_category,omitempty"`
	FixableCount      int            `json:"fixable_count"`
	FilesTruncated    bool           `json:"files_truncated,omitempty"`
	RepoSizeBytes     int64          `json:"repo_size_bytes,omitempty"`
	DurationSeconds   float64        `json:"duration_seconds"`
	Error             string         `json:"error,omitempty"`
}

// BuildSummary aggregates findings into a Summary.
func BuildSummary(findings []Finding, filesScanned int, truncated bool, repoSize int64, elapsed time.Duration) *Summary {
	s := &Summary{
		TotalFilesScanned: filesScanned,
		TotalFindings:     len(findings),
		ByLanguage:        map[string]int{},
		BySeverity:        map[string]int{},
		ByKind:            map[string]int{},
		ByCategory:        map[string]int{},
		FilesTruncated:    truncated,
		RepoSizeBytes:     repoSize,
		DurationSeconds:   float64(int(elapsed.Seconds()*100)) / 100,
	}
	for _, f := range findings {
		s.ByLanguage[f.Language]++
		s.BySeverity[string(f.Severity)]++
		s.ByKind[string(f.Kind)]++
		s.ByCategory[f.Category]++
		if f.Fixable {
			s.FixableCount++
		}
	}
	return s
}

// QueueEntry is the orchestrator's bookkeeping record for a queued job.
// Kept separate from Job so queue state can be pruned or rebuilt without
// touching the permanent record.
type QueueEntry struct {
	ID          int64      `json:"id"           db:"id"`
	JobID       int64      `json:"job_id"       db:"job_id"`
	Priority    int        `json:"priority"     db:"priority"`
	Status      string     `json:"status"       db:"status"` // queued|processing|completed|failed
	WorkerID    string     `json:"worker_id"    db:"worker_id"`
	RetryCount  int        `json:"retry_count"  db:"retry_count"`
	ErrorMsg    string     `json:"error_msg"    db:"error_msg"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	StartedAt   *time.Time `json:"started_at"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// DeliveryAttempt is the append-only audit row for one webhook delivery
// attempt. Status 0 means no HTTP response was received (network failure).
type DeliveryAttempt struct {
	ID          int64      `json:"id"           db:"id"`
	JobID       int64      `json:"job_id"       db:"job_id"`
	URL         string     `json:"url"          db:"url"`
	Event       string     `json:"event"        db:"event"`
	Attempt     int        `json:"attempt"      db:"attempt"`
	Status      int        `json:"status"       db:"status"`
	Response    string     `json:"response"     db:"response"` // truncated body or error text
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at" db:"delivered_at"`
}

// APIKey is a hashed credential granting access to the REST surface.
// The raw key is returned once at creation and never stored.
type APIKey struct {
	ID        int64      `json:"id"         db:"id"`
	KeyHash   string     `json:"key_hash"   db:"key_hash"`
	Team      string     `json:"team"       db:"team"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	IsActive  bool       `json:"is_active"  db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt *time.Time `json:"expires_at" db:"expires_at"`
	LastUsed  *time.Time `json:"last_used"  db:"last_used"`
}
