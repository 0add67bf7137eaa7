package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/internal/orchestrator"
	"github.com/lintagent/lintagent/internal/ratelimit"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/internal/webhook"
	"github.com/lintagent/lintagent/models"
)

func newTestGateway(t *testing.T, cfg config.Config) (*Gateway, *store.Store) {
	t.Helper()
	if cfg.Workers.QueueSize == 0 {
		cfg.Workers.QueueSize = 10
	}
	db, err := database.NewSQLite(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "gateway.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(db)
	hooks := webhook.NewSender(cfg.Webhook, st)
	orch := orchestrator.New(cfg, st, nil, nil, nil, nil, hooks)

	var limiter ratelimit.Limiter
	if cfg.Limits.RequestsPerMinute > 0 {
		limiter = ratelimit.NewMemory(cfg.Limits.RequestsPerMinute)
	}
	return New(cfg, st, orch, hooks, limiter), st
}

func doJSON(t *testing.T, gw *Gateway, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	return rr
}

const submitBody = `{"repo_url":"https://github.com/acme/widgets.git","team":"platform","leader":"jordan"}`

func TestSubmitJobAccepted(t *testing.T) {
	gw, st := newTestGateway(t, config.Config{})

	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp jobResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == 0 || resp.Status != models.StatusPending {
		t.Errorf("unexpected job: %+v", resp)
	}

	stored, err := st.GetJob(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.Team != "platform" {
		t.Errorf("team = %q", stored.Team)
	}
}

func TestSubmitJobRejectsBadRequests(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"repo_url":`},
		{"missing fields", `{"repo_url":"https://github.com/a/b.git"}`},
		{"hostile url", `{"repo_url":"https://github.com/a/b;rm -rf /","team":"t","leader":"l"}`},
		{"bad webhook", `{"repo_url":"https://github.com/a/b.git","team":"t","leader":"l","webhook":{"url":"ftp://x"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSubmitJobQueueFull(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{Workers: config.WorkerConfig{QueueSize: 1}})

	if rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody); rr.Code != http.StatusAccepted {
		t.Fatalf("first submit: %d", rr.Code)
	}
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestSubmitJobRateLimited(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{Limits: config.LimitsConfig{RequestsPerMinute: 2}})

	for i := 0; i < 2; i++ {
		if rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody); rr.Code != http.StatusAccepted {
			t.Fatalf("submit %d: %d", i+1, rr.Code)
		}
	}
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitBatchMixedResults(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{})

	body := `{"continue_on_error":true,"jobs":[
		{"repo_url":"https://github.com/acme/one.git","team":"t","leader":"l"},
		{"repo_url":"not a url","team":"t","leader":"l"},
		{"repo_url":"https://github.com/acme/two.git","team":"t","leader":"l"}
	]}`
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs/batch", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp batchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Accepted) != 2 || len(resp.Rejected) != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 2/1", len(resp.Accepted), len(resp.Rejected))
	}
	if len(resp.Rejected) == 1 && resp.Rejected[0].Index != 1 {
		t.Errorf("rejected index = %d, want 1", resp.Rejected[0].Index)
	}
}

func TestSubmitBatchStopsWithoutContinueOnError(t *testing.T) {
	gw, st := newTestGateway(t, config.Config{})

	body := `{"webhook":{"url":"https://hooks.example.com/cb"},"jobs":[
		{"repo_url":"not a url","team":"t","leader":"l"},
		{"repo_url":"https://github.com/acme/one.git","team":"t","leader":"l"}
	]}`
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs/batch", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp batchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Accepted) != 0 || len(resp.Rejected) != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 0/1", len(resp.Accepted), len(resp.Rejected))
	}

	jobs, _, err := st.ListJobs(context.Background(), store.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs persisted = %d, want 0 after early stop", len(jobs))
	}
}

func TestSubmitBatchSharedWebhook(t *testing.T) {
	gw, st := newTestGateway(t, config.Config{})

	body := `{"webhook":{"url":"https://hooks.example.com/cb","secret":"s"},"jobs":[
		{"repo_url":"https://github.com/acme/one.git","team":"t","leader":"l"}
	]}`
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs/batch", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp batchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	job, err := st.GetJob(context.Background(), resp.Accepted[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	wc, err := job.Webhook()
	if err != nil || wc == nil || wc.URL != "https://hooks.example.com/cb" {
		t.Errorf("stored webhook = %+v, %v", wc, err)
	}
}

func TestSubmitBatchPriorityFallback(t *testing.T) {
	gw, st := newTestGateway(t, config.Config{})

	body := `{"priority":5,"continue_on_error":true,"jobs":[
		{"repo_url":"https://github.com/acme/one.git","team":"t","leader":"l"},
		{"repo_url":"https://github.com/acme/two.git","team":"t","leader":"l","priority":0},
		{"repo_url":"https://github.com/acme/three.git","team":"t","leader":"l","priority":8}
	]}`
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs/batch", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp batchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Accepted) != 3 {
		t.Fatalf("accepted = %d, want 3", len(resp.Accepted))
	}

	// Unset inherits the batch default; an explicit 0 does not.
	want := map[string]int{
		"https://github.com/acme/one.git":   5,
		"https://github.com/acme/two.git":   0,
		"https://github.com/acme/three.git": 8,
	}
	for _, accepted := range resp.Accepted {
		job, err := st.GetJob(context.Background(), accepted.ID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Priority != want[job.RepoURL] {
			t.Errorf("%s priority = %d, want %d", job.RepoURL, job.Priority, want[job.RepoURL])
		}
	}
}

func TestGetJobAndNotFound(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{})

	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	var created jobResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	rr = doJSON(t, gw, http.MethodGet, "/api/v1/jobs/"+strconv.FormatInt(created.ID, 10), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if rr = doJSON(t, gw, http.MethodGet, "/api/v1/jobs/9999", ""); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if rr = doJSON(t, gw, http.MethodGet, "/api/v1/jobs/abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", rr.Code)
	}
}

func TestListJobsFilters(t *testing.T) {
	gw, st := newTestGateway(t, config.Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	}
	if err := st.FinishJob(ctx, 1, models.StatusCompleted, &models.Summary{}, "", nil); err != nil {
		t.Fatal(err)
	}

	rr := doJSON(t, gw, http.MethodGet, "/api/v1/jobs?status=completed", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Jobs  []jobResponse `json:"jobs"`
		Total int           `json:"total"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Jobs) != 1 {
		t.Errorf("total/jobs = %d/%d, want 1/1", resp.Total, len(resp.Jobs))
	}

	if rr = doJSON(t, gw, http.MethodGet, "/api/v1/jobs?since=yesterday", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad since, got %d", rr.Code)
	}
}

func TestCancelAndDeleteJob(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{})

	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	var created jobResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	id := strconv.FormatInt(created.ID, 10)

	// Active jobs cannot be deleted.
	if rr = doJSON(t, gw, http.MethodDelete, "/api/v1/jobs/"+id, ""); rr.Code != http.StatusConflict {
		t.Errorf("delete active job: expected 409, got %d", rr.Code)
	}

	if rr = doJSON(t, gw, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", ""); rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	// A second cancel hits a terminal job.
	if rr = doJSON(t, gw, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", ""); rr.Code != http.StatusConflict {
		t.Errorf("double cancel: expected 409, got %d", rr.Code)
	}

	if rr = doJSON(t, gw, http.MethodDelete, "/api/v1/jobs/"+id, ""); rr.Code != http.StatusOK {
		t.Errorf("delete cancelled job: expected 200, got %d", rr.Code)
	}
	if rr = doJSON(t, gw, http.MethodGet, "/api/v1/jobs/"+id, ""); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestJobFindingsEndpoint(t *testing.T) {
	gw, st := newTestGateway(t, config.Config{})
	ctx := context.Background()

	rr := doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)
	var created jobResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	findings := []models.Finding{
		{FilePath: "a.py", Line: 1, Kind: models.KindLint, Severity: models.SeverityError, Language: "python", Tool: "flake8"},
		{FilePath: "b.py", Line: 2, Kind: models.KindLint, Severity: models.SeverityWarning, Language: "python", Tool: "flake8"},
	}
	sum := models.BuildSummary(findings, 2, false, 0, time.Second)
	if err := st.FinishJob(ctx, created.ID, models.StatusCompleted, sum, "", findings); err != nil {
		t.Fatal(err)
	}

	id := strconv.FormatInt(created.ID, 10)
	rr = doJSON(t, gw, http.MethodGet, "/api/v1/jobs/"+id+"/findings?severity=error", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Findings []models.Finding `json:"findings"`
		Total    int              `json:"total"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Findings) != 1 || resp.Findings[0].FilePath != "a.py" {
		t.Errorf("unexpected findings: %+v", resp)
	}
}

func TestQueueStatsAndHealth(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{})

	doJSON(t, gw, http.MethodPost, "/api/v1/jobs", submitBody)

	rr := doJSON(t, gw, http.MethodGet, "/api/v1/queue", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("queue: expected 200, got %d", rr.Code)
	}
	var qresp struct {
		Depth   int                 `json:"depth"`
		Entries []models.QueueEntry `json:"entries"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&qresp); err != nil {
		t.Fatal(err)
	}
	if qresp.Depth != 1 || len(qresp.Entries) != 1 {
		t.Errorf("depth/entries = %d/%d, want 1/1", qresp.Depth, len(qresp.Entries))
	}

	if rr = doJSON(t, gw, http.MethodGet, "/api/v1/stats", ""); rr.Code != http.StatusOK {
		t.Errorf("stats: expected 200, got %d", rr.Code)
	}
	if rr = doJSON(t, gw, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rr.Code)
	}
}

func TestWebhookTestEndpoint(t *testing.T) {
	gw, _ := newTestGateway(t, config.Config{})

	var gotSig string
	recv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer recv.Close()

	body := `{"url":"` + recv.URL + `","secret":"s3cret"}`
	rr := doJSON(t, gw, http.MethodPost, "/api/v1/webhooks/test", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(gotSig) != 64 {
		t.Errorf("signature header = %q, want 64 hex chars", gotSig)
	}

	if rr = doJSON(t, gw, http.MethodPost, "/api/v1/webhooks/test", `{"url":"ftp://x"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad URL, got %d", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	open, st := newTestGateway(t, config.Config{})

	rr := doJSON(t, open, http.MethodPost, "/api/v1/apikeys", `{"team":"platform","created_by":"jordan"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create key: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Key     string `json:"key"`
		KeyHash string `json:"key_hash"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Key == "" || created.KeyHash != hashKey(created.Key) {
		t.Fatalf("bad key material: %+v", created)
	}

	// A locked-down gateway over the same store accepts only that key.
	locked := New(config.Config{
		Server:  config.ServerConfig{AuthRequired: true},
		Workers: config.WorkerConfig{QueueSize: 10},
	}, st, open.orch, open.hooks, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	buildHandler(locked).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no key: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("X-API-Key", created.Key)
	w = httptest.NewRecorder()
	buildHandler(locked).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+created.Key)
	w = httptest.NewRecorder()
	buildHandler(locked).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer token: expected 200, got %d", w.Code)
	}

	if rr = doJSON(t, open, http.MethodDelete, "/api/v1/apikeys/"+created.KeyHash, ""); rr.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", rr.Code)
	}
	// Each gateway keeps its own key cache; drop the locked one too rather
	// than waiting out the TTL.
	locked.keys.invalidate(created.KeyHash)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("X-API-Key", created.Key)
	w = httptest.NewRecorder()
	buildHandler(locked).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("revoked key: expected 401, got %d", w.Code)
	}

	if rr = doJSON(t, open, http.MethodDelete, "/api/v1/apikeys/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("revoke unknown: expected 404, got %d", rr.Code)
	}
}
