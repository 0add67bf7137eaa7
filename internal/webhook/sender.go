// Package webhook delivers job lifecycle notifications to caller-supplied
// HTTP endpoints, with HMAC-SHA256 signing, bounded retries and a durable
// audit trail of every attempt.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/metrics"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/models"
)

// Payload is the envelope posted to webhook endpoints.
type Payload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	JobID     int64  `json:"job_id"`
	Data      any    `json:"data,omitempty"`
}

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 10 * time.Second
	maxResponse    = 1024 // bytes of response body kept in the audit row
)

// Sender posts signed lifecycle events. A nil *Sender is usable and sends
// nothing, so callers need no webhook-configured branch.
type Sender struct {
	cfg    config.WebhookConfig
	store  *store.Store
	client *http.Client
	sleep  func(time.Duration)
}

// NewSender creates a Sender using the webhook section of the configuration.
func NewSender(cfg config.WebhookConfig, st *store.Store) *Sender {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: timeout},
		sleep:  time.Sleep,
	}
}

// Send delivers one event to wc, retrying transport failures with
// exponential backoff. A response of any HTTP status counts as delivered:
// the endpoint spoke, so retrying would only duplicate the notification.
// Events the configuration does not subscribe to are dropped silently.
func (s *Sender) Send(ctx context.Context, wc *models.WebhookConfig, jobID int64, event string, data any) {
	if s == nil || wc == nil || wc.URL == "" || !wc.WantsEvent(event) {
		return
	}

	payload := Payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		JobID:     jobID,
		Data:      data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode webhook payload", "job_id", jobID, "event", event, "error", err)
		return
	}

	attempts := s.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	backoff := initialBackoff
	for attempt := 1; attempt <= attempts; attempt++ {
		rowID := s.recordAttempt(ctx, jobID, wc.URL, event, attempt)

		status, respBody, err := s.post(ctx, wc, body)
		if err == nil {
			s.stampAttempt(ctx, rowID, status, respBody, true)
			if status >= 200 && status < 300 {
				metrics.WebhookAttempts.WithLabelValues("delivered").Inc()
				slog.Info("Webhook delivered", "job_id", jobID, "event", event, "status", status, "attempt", attempt)
			} else {
				metrics.WebhookAttempts.WithLabelValues("rejected").Inc()
				slog.Warn("Webhook endpoint rejected payload",
					"job_id", jobID, "event", event, "status", status, "attempt", attempt)
			}
			return
		}

		metrics.WebhookAttempts.WithLabelValues("error").Inc()
		s.stampAttempt(ctx, rowID, 0, err.Error(), false)

		if ctx.Err() != nil {
			return
		}
		if attempt < attempts {
			slog.Warn("Webhook delivery failed, retrying",
				"job_id", jobID, "event", event, "attempt", attempt, "backoff", backoff, "error", err)
			s.sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			slog.Error("Webhook delivery exhausted retries",
				"job_id", jobID, "event", event, "attempts", attempts, "error", err)
		}
	}
}

// post performs one HTTP delivery. The signature covers the exact bytes on
// the wire, so receivers can verify with a plain HMAC over the raw body.
func (s *Sender) post(ctx context.Context, wc *models.WebhookConfig, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lintagent-webhook/1.0")
	for k, v := range wc.Headers {
		req.Header.Set(k, v)
	}
	if wc.Secret != "" {
		mac := hmac.New(sha256.New, []byte(wc.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	client := s.client
	if wc.TimeoutSec > 0 {
		client = &http.Client{Timeout: time.Duration(wc.TimeoutSec) * time.Second}
	}
	resp, err := client.Do(req) // #nosec G107 -- URL is a caller-configured webhook endpoint
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	return resp.StatusCode, string(respBody), nil
}

func (s *Sender) recordAttempt(ctx context.Context, jobID int64, url, event string, attempt int) int64 {
	if s.store == nil {
		return 0
	}
	id, err := s.store.RecordDelivery(ctx, &models.DeliveryAttempt{
		JobID:   jobID,
		URL:     url,
		Event:   event,
		Attempt: attempt,
	})
	if err != nil {
		slog.Warn("Failed to record webhook attempt", "job_id", jobID, "error", err)
	}
	return id
}

func (s *Sender) stampAttempt(ctx context.Context, rowID int64, status int, response string, delivered bool) {
	if s.store == nil || rowID == 0 {
		return
	}
	if len(response) > maxResponse {
		response = response[:maxResponse]
	}
	if err := s.store.StampDelivery(ctx, rowID, status, response, delivered); err != nil {
		slog.Warn("Failed to update webhook attempt", "row_id", rowID, "error", err)
	}
}

// VerifySignature checks a received signature header against body. Intended
// for receivers; exported so integration tests and docs share one source of
// truth for the scheme.
func VerifySignature(secret string, body []byte, header string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}

// Fire posts an event without a per-job webhook configuration, used by the
// gateway's webhook test endpoint.
func (s *Sender) Fire(ctx context.Context, url, secret string, jobID int64, event string, data any) error {
	wc := &models.WebhookConfig{URL: url, Secret: secret, Events: []string{event}}
	if !models.WebhookEvents[event] {
		return fmt.Errorf("unknown webhook event %q", event)
	}
	s.Send(ctx, wc, jobID, event, data)
	return nil
}
