package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/models"
)

func newTestSender(t *testing.T) (*Sender, *store.Store) {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "webhook.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(db)
	s := NewSender(config.WebhookConfig{MaxRetries: 3, TimeoutSec: 5}, st)
	s.sleep = func(time.Duration) {}
	return s, st
}

func TestSendDelivers(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, st := newTestSender(t)
	wc := &models.WebhookConfig{URL: srv.URL, Secret: "topsecret"}
	s.Send(context.Background(), wc, 7, "completed", map[string]int{"total_findings": 3})

	var payload Payload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Event != "completed" || payload.JobID != 7 {
		t.Errorf("payload = %+v", payload)
	}
	if !VerifySignature("topsecret", gotBody, gotSig) {
		t.Error("signature does not verify against the raw body")
	}
	if VerifySignature("wrong", gotBody, gotSig) {
		t.Error("signature must not verify with another secret")
	}

	attempts, err := st.Deliveries(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || attempts[0].Status != 200 || attempts[0].DeliveredAt == nil {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestSendRetriesTransportErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			// Drop the connection mid-request to simulate a network failure.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, st := newTestSender(t)
	wc := &models.WebhookConfig{URL: srv.URL}
	s.Send(context.Background(), wc, 9, "failed", nil)

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("endpoint hit %d times, want 3", n)
	}
	attempts, err := st.Deliveries(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 3 {
		t.Fatalf("recorded %d attempts, want 3", len(attempts))
	}
	if attempts[0].Status != 0 || attempts[0].DeliveredAt != nil {
		t.Errorf("first attempt = %+v, want network failure", attempts[0])
	}
	if attempts[2].Status != 200 || attempts[2].DeliveredAt == nil {
		t.Errorf("last attempt = %+v, want delivered", attempts[2])
	}
}

func TestSendDoesNotRetryHTTPErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no thanks", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, st := newTestSender(t)
	s.Send(context.Background(), &models.WebhookConfig{URL: srv.URL}, 11, "completed", nil)

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("endpoint hit %d times, want 1 (HTTP errors are not retried)", n)
	}
	attempts, _ := st.Deliveries(context.Background(), 11)
	if len(attempts) != 1 || attempts[0].Status != 500 {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestSendSkipsUnsubscribedEvents(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	s, _ := newTestSender(t)
	// Default subscription is completed + failed only.
	wc := &models.WebhookConfig{URL: srv.URL}
	s.Send(context.Background(), wc, 1, "progress", nil)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("progress must not be sent to default subscriptions")
	}

	wc.Events = []string{"progress"}
	s.Send(context.Background(), wc, 1, "progress", nil)
	if atomic.LoadInt32(&calls) != 1 {
		t.Error("explicitly subscribed progress event must be sent")
	}
	s.Send(context.Background(), wc, 1, "completed", nil)
	if atomic.LoadInt32(&calls) != 1 {
		t.Error("completed must not be sent when only progress is subscribed")
	}
}

func TestSendCustomHeaders(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Team-Token")
	}))
	defer srv.Close()

	s, _ := newTestSender(t)
	wc := &models.WebhookConfig{URL: srv.URL, Headers: map[string]string{"X-Team-Token": "abc"}}
	s.Send(context.Background(), wc, 1, "completed", nil)
	if gotHeader != "abc" {
		t.Errorf("custom header = %q, want abc", gotHeader)
	}
}

func TestNilSenderIsSafe(t *testing.T) {
	var s *Sender
	s.Send(context.Background(), &models.WebhookConfig{URL: "http://example.invalid"}, 1, "completed", nil)
}
