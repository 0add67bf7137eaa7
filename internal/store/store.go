// Package store persists jobs, findings, queue entries, webhook delivery
// attempts and API keys on top of the database layer. All writes that must
// be atomic (terminal job updates, job deletion) go through transactions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNotTerminal is returned when an operation requires the job to be
	// in a terminal state and it is not.
	ErrNotTerminal = errors.New("job is not in a terminal state")
	// ErrSuperseded is returned by FinishJob when the job already reached a
	// different terminal state, typically a cancel racing a worker's
	// terminal write. The recorded state wins.
	ErrSuperseded = errors.New("job already in a different terminal state")
)

// jobColumns must list every db-tagged field of models.Job in declaration
// order; Get scans positionally.
const jobColumns = "id, repo_url, team, leader, branch, tag, commit_sha, status, priority, " +
	"summary, webhook, metadata, error_msg, duration_ms, created_at, updated_at, started_at, completed_at"

// Store is the persistence facade used by the orchestrator and the gateway.
type Store struct {
	db database.DB
}

// New wraps db in a Store.
func New(db database.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database, mainly for health checks.
func (s *Store) DB() database.DB { return s.db }

// CreateJob inserts a pending job record built from sub and returns it.
func (s *Store) CreateJob(ctx context.Context, sub *models.Submission) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		RepoURL:     sub.RepoURL,
		Team:        sub.Team,
		Leader:      sub.Leader,
		Branch:      sub.Branch,
		Tag:         sub.Tag,
		CommitSHA:   sub.CommitSHA,
		Status:      models.StatusPending,
		Priority:    sub.Priority,
		WebhookJSON: sub.WebhookJSON(),
		MetaJSON:    sub.MetadataJSON(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.db.Insert(ctx, "jobs", job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	job.ID = id
	return job, nil
}

// GetJob fetches one job by ID.
func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	err := s.db.Get(ctx, &job, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return &job, nil
}

// JobFilter narrows ListJobs results. Zero values are ignored.
type JobFilter struct {
	Status  models.JobStatus
	Team    string
	RepoURL string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// ListJobs returns jobs matching f, newest first, plus the total match count
// before pagination.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]models.Job, int, error) {
	var conds []string
	var args []interface{}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Team != "" {
		conds = append(conds, "team = ?")
		args = append(args, f.Team)
	}
	if f.RepoURL != "" {
		conds = append(conds, "repo_url = ?")
		args = append(args, f.RepoURL)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.UTC())
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.Get(ctx, &total, "SELECT COUNT(*) FROM jobs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var jobs []models.Job
	query := "SELECT * FROM jobs" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	if err := s.db.Select(ctx, &jobs, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

// MarkProcessing transitions a job to processing and stamps started_at.
func (s *Store) MarkProcessing(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	err := s.db.Exec(ctx,
		"UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(models.StatusProcessing), now, now, id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("mark job %d processing: %w", id, err)
	}
	return nil
}

// ResetPending returns a processing job to pending ahead of a retry.
func (s *Store) ResetPending(ctx context.Context, id int64) error {
	return s.db.Exec(ctx,
		"UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(models.StatusPending), time.Now().UTC(), id, string(models.StatusProcessing))
}

// SetCommit records the commit that was actually checked out for analysis.
func (s *Store) SetCommit(ctx context.Context, id int64, sha string) error {
	return s.db.Exec(ctx,
		"UPDATE jobs SET commit_sha = ?, updated_at = ? WHERE id = ?",
		sha, time.Now().UTC(), id)
}

// FinishJob moves a job into a terminal state. The status update, summary,
// error message and all findings are written in a single transaction so a
// crash can never leave a completed job without its findings. A job that
// already reached a different terminal state keeps it; the write is refused
// with ErrSuperseded.
func (s *Store) FinishJob(ctx context.Context, id int64, status models.JobStatus, sum *models.Summary, errMsg string, findings []models.Finding) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %d: status %q is not terminal", id, status)
	}
	job := &models.Job{}
	if err := job.SetSummary(sum); err != nil {
		return fmt.Errorf("finish job %d: encode summary: %w", id, err)
	}
	cur, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() && cur.Status != status {
		return fmt.Errorf("finish job %d as %s: %w (is %s)", id, status, ErrSuperseded, cur.Status)
	}
	now := time.Now().UTC()
	var durationMs int64
	if sum != nil {
		durationMs = int64(sum.DurationSeconds * 1000)
	}
	return s.db.WithTx(ctx, func(tx database.Execer) error {
		// A terminal status is only ever rewritten by itself; a cancel that
		// slipped in between the read above and this write keeps its state.
		err := tx.Exec(ctx,
			"UPDATE jobs SET status = ?, summary = ?, error_msg = ?, duration_ms = ?, completed_at = ?, updated_at = ? WHERE id = ? AND (status NOT IN (?, ?, ?) OR status = ?)",
			string(status), job.SummaryJSON, errMsg, durationMs, now, now, id,
			string(models.StatusCompleted), string(models.StatusFailed), string(models.StatusCancelled),
			string(status))
		if err != nil {
			return fmt.Errorf("finish job %d: %w", id, err)
		}
		for i := range findings {
			findings[i].JobID = id
			if _, err := tx.Insert(ctx, "job_findings", &findings[i]); err != nil {
				return fmt.Errorf("finish job %d: insert finding: %w", id, err)
			}
		}
		return nil
	})
}

// CancelJob marks a non-terminal job cancelled. Terminal jobs are left
// untouched and reported via ErrNotTerminal's inverse: cancelling a job
// that already finished returns an error naming its state.
func (s *Store) CancelJob(ctx context.Context, id int64) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("cancel job %d: already %s", id, job.Status)
	}
	now := time.Now().UTC()
	err = s.db.Exec(ctx,
		"UPDATE jobs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)",
		string(models.StatusCancelled), now, now, id,
		string(models.StatusPending), string(models.StatusProcessing))
	if err != nil {
		return fmt.Errorf("cancel job %d: %w", id, err)
	}
	return nil
}

// DeleteJob removes a terminal job and every row referencing it.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return ErrNotTerminal
	}
	return s.db.WithTx(ctx, func(tx database.Execer) error {
		for _, q := range []string{
			"DELETE FROM job_findings WHERE job_id = ?",
			"DELETE FROM webhook_deliveries WHERE job_id = ?",
			"DELETE FROM queue_entries WHERE job_id = ?",
			"DELETE FROM jobs WHERE id = ?",
		} {
			if err := tx.Exec(ctx, q, id); err != nil {
				return fmt.Errorf("delete job %d: %w", id, err)
			}
		}
		return nil
	})
}

// Findings returns all findings recorded for a job.
func (s *Store) Findings(ctx context.Context, jobID int64) ([]models.Finding, error) {
	var findings []models.Finding
	err := s.db.Select(ctx, &findings,
		"SELECT * FROM job_findings WHERE job_id = ? ORDER BY file_path, line, col", jobID)
	if err != nil {
		return nil, fmt.Errorf("findings for job %d: %w", jobID, err)
	}
	return findings, nil
}
