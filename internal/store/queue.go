package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lintagent/lintagent/models"
)

// CreateQueueEntry records that a job was accepted into the queue.
func (s *Store) CreateQueueEntry(ctx context.Context, jobID int64, priority int) (*models.QueueEntry, error) {
	entry := &models.QueueEntry{
		JobID:     jobID,
		Priority:  priority,
		Status:    "queued",
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.db.Insert(ctx, "queue_entries", entry)
	if err != nil {
		return nil, fmt.Errorf("create queue entry for job %d: %w", jobID, err)
	}
	entry.ID = id
	return entry, nil
}

// ClaimQueueEntry marks the job's queue entry as picked up by workerID.
func (s *Store) ClaimQueueEntry(ctx context.Context, jobID int64, workerID string) error {
	return s.db.Exec(ctx,
		"UPDATE queue_entries SET status = 'processing', worker_id = ?, started_at = ? WHERE job_id = ? AND status = 'queued'",
		workerID, time.Now().UTC(), jobID)
}

// FinishQueueEntry closes the job's queue entry with a final status.
func (s *Store) FinishQueueEntry(ctx context.Context, jobID int64, status, errMsg string) error {
	return s.db.Exec(ctx,
		"UPDATE queue_entries SET status = ?, error_msg = ?, completed_at = ? WHERE job_id = ? AND status IN ('queued', 'processing')",
		status, errMsg, time.Now().UTC(), jobID)
}

// RequeueEntry puts a failed job back into the queued state and bumps its
// retry counter. Returns the new retry count.
func (s *Store) RequeueEntry(ctx context.Context, jobID int64, errMsg string) (int, error) {
	err := s.db.Exec(ctx,
		"UPDATE queue_entries SET status = 'queued', worker_id = '', error_msg = ?, retry_count = retry_count + 1, started_at = NULL WHERE job_id = ?",
		errMsg, jobID)
	if err != nil {
		return 0, fmt.Errorf("requeue job %d: %w", jobID, err)
	}
	var count int
	if err := s.db.Get(ctx, &count, "SELECT retry_count FROM queue_entries WHERE job_id = ?", jobID); err != nil {
		return 0, fmt.Errorf("requeue job %d: %w", jobID, err)
	}
	return count, nil
}

// QueueSnapshot returns all open (queued or processing) entries, highest
// priority first.
func (s *Store) QueueSnapshot(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.Select(ctx, &entries,
		"SELECT * FROM queue_entries WHERE status IN ('queued', 'processing') ORDER BY priority DESC, created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}
	return entries, nil
}
