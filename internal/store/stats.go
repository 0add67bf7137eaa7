package store

import (
	"context"
	"fmt"
	"time"
)

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	JobsByStatus    map[string]int `json:"jobs_by_status"`
	TotalJobs       int            `json:"total_jobs"`
	TotalFindings   int            `json:"total_findings"`
	JobsLast24h     int            `json:"jobs_last_24h"`
	AvgDurationSecs float64        `json:"avg_duration_seconds"`
	QueuedJobs      int            `json:"queued_jobs"`
	TopIssues       []IssueCount   `json:"top_issues"`
}

// IssueCount is one entry of the most frequent finding codes.
type IssueCount struct {
	Code     string `db:"code" json:"code"`
	Severity string `db:"severity" json:"severity"`
	Count    int    `db:"n" json:"count"`
}

// statusCount is the row shape of the GROUP BY status query.
type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"n"`
}

// Stats aggregates job counts, finding counts and durations.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{JobsByStatus: map[string]int{}}

	var counts []statusCount
	if err := s.db.Select(ctx, &counts, "SELECT status, COUNT(*) AS n FROM jobs GROUP BY status"); err != nil {
		return nil, fmt.Errorf("stats: jobs by status: %w", err)
	}
	for _, c := range counts {
		st.JobsByStatus[c.Status] = c.Count
		st.TotalJobs += c.Count
	}

	if err := s.db.Get(ctx, &st.TotalFindings, "SELECT COUNT(*) FROM job_findings"); err != nil {
		return nil, fmt.Errorf("stats: finding count: %w", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	if err := s.db.Get(ctx, &st.JobsLast24h, "SELECT COUNT(*) FROM jobs WHERE created_at >= ?", cutoff); err != nil {
		return nil, fmt.Errorf("stats: recent jobs: %w", err)
	}

	var avgMs float64
	err := s.db.Get(ctx, &avgMs,
		"SELECT COALESCE(AVG(duration_ms), 0) FROM jobs WHERE status = 'completed'")
	if err != nil {
		return nil, fmt.Errorf("stats: average duration: %w", err)
	}
	st.AvgDurationSecs = avgMs / 1000

	if err := s.db.Get(ctx, &st.QueuedJobs, "SELECT COUNT(*) FROM queue_entries WHERE status = 'queued'"); err != nil {
		return nil, fmt.Errorf("stats: queued jobs: %w", err)
	}

	err = s.db.Select(ctx, &st.TopIssues,
		`SELECT code, severity, COUNT(*) AS n FROM job_findings
		 WHERE code IS NOT NULL AND code <> ''
		 GROUP BY code, severity ORDER BY n DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("stats: top issues: %w", err)
	}
	return st, nil
}
