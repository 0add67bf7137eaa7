package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lintagent/lintagent/models"
)

// RecordDelivery appends one webhook delivery attempt and returns its ID.
// Attempts are written before the outcome is known so a crash mid-delivery
// still leaves an audit row.
func (s *Store) RecordDelivery(ctx context.Context, d *models.DeliveryAttempt) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	id, err := s.db.Insert(ctx, "webhook_deliveries", d)
	if err != nil {
		return 0, fmt.Errorf("record delivery for job %d: %w", d.JobID, err)
	}
	d.ID = id
	return id, nil
}

// StampDelivery records the HTTP outcome of a delivery attempt and, when it
// succeeded, the delivery time.
func (s *Store) StampDelivery(ctx context.Context, id int64, status int, response string, delivered bool) error {
	if delivered {
		return s.db.Exec(ctx,
			"UPDATE webhook_deliveries SET status = ?, response = ?, delivered_at = ? WHERE id = ?",
			status, response, time.Now().UTC(), id)
	}
	return s.db.Exec(ctx,
		"UPDATE webhook_deliveries SET status = ?, response = ? WHERE id = ?",
		status, response, id)
}

// Deliveries returns every delivery attempt recorded for a job, oldest first.
func (s *Store) Deliveries(ctx context.Context, jobID int64) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	err := s.db.Select(ctx, &attempts,
		"SELECT * FROM webhook_deliveries WHERE job_id = ? ORDER BY id", jobID)
	if err != nil {
		return nil, fmt.Errorf("deliveries for job %d: %w", jobID, err)
	}
	return attempts, nil
}
