package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lintagent/lintagent/internal/metrics"
	"github.com/lintagent/lintagent/internal/orchestrator"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/models"
)

// buildHandler wires all REST routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	api := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, gw.requireAPIKey(h))
	}

	// Job submission and lifecycle
	api("POST /api/v1/jobs", gw.handleSubmitJob)
	api("POST /api/v1/jobs/batch", gw.handleSubmitBatch)
	api("GET /api/v1/jobs", gw.handleListJobs)
	api("GET /api/v1/jobs/{id}", gw.handleGetJob)
	api("GET /api/v1/jobs/{id}/findings", gw.handleJobFindings)
	api("GET /api/v1/jobs/{id}/deliveries", gw.handleJobDeliveries)
	api("POST /api/v1/jobs/{id}/cancel", gw.handleCancelJob)
	api("DELETE /api/v1/jobs/{id}", gw.handleDeleteJob)

	// Operational views
	api("GET /api/v1/queue", gw.handleQueue)
	api("GET /api/v1/stats", gw.handleStats)

	// API key management
	api("POST /api/v1/apikeys", gw.handleCreateAPIKey)
	api("GET /api/v1/apikeys", gw.handleListAPIKeys)
	api("DELETE /api/v1/apikeys/{hash}", gw.handleRevokeAPIKey)

	// Webhook endpoint verification
	api("POST /api/v1/webhooks/test", gw.handleWebhookTest)

	return mux
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID extracts a numeric path parameter by name from the request.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return 0, fmt.Errorf("missing path parameter %q", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// clientIdentity picks the rate-limit key for a request: the API key hash
// when authenticated, otherwise the client IP.
func clientIdentity(r *http.Request) string {
	if h, ok := r.Context().Value(apiKeyHashKey{}).(string); ok && h != "" {
		return h
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- Response types ---

// jobResponse is a Job with its JSON columns decoded for the caller.
type jobResponse struct {
	models.Job
	Summary  *models.Summary `json:"summary,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func toJobResponse(j *models.Job) jobResponse {
	resp := jobResponse{Job: *j}
	resp.Summary, _ = j.Summary()
	if j.MetaJSON != "" {
		_ = json.Unmarshal([]byte(j.MetaJSON), &resp.Metadata)
	}
	return resp
}

// --- Job handlers ---

func (gw *Gateway) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !gw.allowRequest(w, r) {
		return
	}
	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if sub.RepoURL == "" || sub.Team == "" || sub.Leader == "" {
		writeError(w, http.StatusBadRequest, "repo_url, team and leader are required")
		return
	}

	job, err := gw.orch.Submit(r.Context(), &sub)
	if err != nil {
		if errors.Is(err, orchestrator.ErrQueueFull) {
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "submission queue is full, retry later")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

type batchRequest struct {
	Jobs []batchJob `json:"jobs"`
	// ContinueOnError keeps going past an individual rejection instead of
	// stopping at the first one.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
	// Priority applies to entries that do not set their own.
	Priority int `json:"priority,omitempty"`
	// Webhook is the shared fallback for entries without their own.
	Webhook *models.WebhookConfig `json:"webhook,omitempty"`
}

// batchJob shadows the submission's priority with a pointer so an entry
// that explicitly asks for priority 0 is not mistaken for one that left it
// unset and handed the batch default.
type batchJob struct {
	models.Submission
	Priority *int `json:"priority"`
}

type batchResponse struct {
	Accepted []jobResponse    `json:"accepted"`
	Rejected []batchRejection `json:"rejected"`
}

type batchRejection struct {
	Index   int    `json:"index"`
	RepoURL string `json:"repo_url"`
	Error   string `json:"error"`
}

// handleSubmitBatch accepts up to 50 submissions in one request.
func (gw *Gateway) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if !gw.allowRequest(w, r) {
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Jobs) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}
	if len(req.Jobs) > 50 {
		writeError(w, http.StatusBadRequest, "batch too large (max 50)")
		return
	}

	resp := batchResponse{Accepted: []jobResponse{}, Rejected: []batchRejection{}}
	for i := range req.Jobs {
		sub := &req.Jobs[i].Submission
		if sub.Webhook == nil {
			sub.Webhook = req.Webhook
		}
		if p := req.Jobs[i].Priority; p != nil {
			sub.Priority = *p
		} else {
			sub.Priority = req.Priority
		}
		job, err := gw.orch.Submit(r.Context(), sub)
		if err != nil {
			resp.Rejected = append(resp.Rejected, batchRejection{
				Index: i, RepoURL: sub.RepoURL, Error: err.Error(),
			})
			if !req.ContinueOnError {
				break
			}
			continue
		}
		resp.Accepted = append(resp.Accepted, toJobResponse(job))
	}

	status := http.StatusAccepted
	if len(resp.Accepted) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (gw *Gateway) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.JobFilter{
		Status:  models.JobStatus(q.Get("status")),
		Team:    q.Get("team"),
		RepoURL: q.Get("repo_url"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC 3339")
			return
		}
		f.Until = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	jobs, total, err := gw.store.ListJobs(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]jobResponse, len(jobs))
	for i := range jobs {
		items[i] = toJobResponse(&jobs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  items,
		"total": total,
	})
}

func (gw *Gateway) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := gw.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (gw *Gateway) handleJobFindings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := gw.store.GetJob(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	findings, err := gw.store.Findings(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if sev := r.URL.Query().Get("severity"); sev != "" {
		filtered := findings[:0]
		for _, f := range findings {
			if string(f.Severity) == sev {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}
	if findings == nil {
		findings = []models.Finding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   id,
		"findings": findings,
		"total":    len(findings),
	})
}

func (gw *Gateway) handleJobDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attempts, err := gw.store.Deliveries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "deliveries": attempts})
}

func (gw *Gateway) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.orch.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "cancelled"})
}

func (gw *Gateway) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.store.DeleteJob(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, store.ErrNotTerminal):
			writeError(w, http.StatusConflict, "job is still active; cancel it first")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// --- Operational handlers ---

func (gw *Gateway) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := gw.store.QueueSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"depth":   gw.orch.Queue().Len(),
		"entries": entries,
	})
}

func (gw *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := gw.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":          stats,
		"queue_depth":    gw.orch.Queue().Len(),
		"uptime_seconds": int64(time.Since(gw.startedAt).Seconds()),
	})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := gw.store.DB().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Webhook handlers ---

type webhookTestRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// handleWebhookTest fires a single signed ping at the given endpoint so a
// caller can verify their receiver before submitting jobs.
func (gw *Gateway) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	var req webhookTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	wc := &models.WebhookConfig{URL: req.URL, Secret: req.Secret}
	if err := wc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.hooks.Fire(r.Context(), req.URL, req.Secret, 0, "started", map[string]any{"test": true}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// allowRequest applies the sliding-window rate limit. A limiter backend
// error fails open: losing Redis must not take submissions down with it.
func (gw *Gateway) allowRequest(w http.ResponseWriter, r *http.Request) bool {
	if gw.limiter == nil {
		return true
	}
	ok, err := gw.limiter.Allow(r.Context(), clientIdentity(r))
	if err != nil {
		return true
	}
	if !ok {
		metrics.RateLimited.Inc()
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
		return false
	}
	return true
}
