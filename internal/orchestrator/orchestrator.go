// Package orchestrator owns the job pipeline: a bounded priority queue, a
// fixed worker pool, and the clone/select/analyze/persist/notify sequence
// for each accepted submission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lintagent/lintagent/internal/analyzer"
	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/metrics"
	"github.com/lintagent/lintagent/internal/repository"
	"github.com/lintagent/lintagent/internal/selector"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/internal/webhook"
	"github.com/lintagent/lintagent/models"
)

const progressEvery = 10 // files between progress webhook events

// errCancelled distinguishes an operator cancel from a timeout.
var errCancelled = errors.New("job cancelled")

// Orchestrator accepts submissions and drives them to a terminal state.
type Orchestrator struct {
	cfg      config.Config
	store    *store.Store
	cloner   *repository.Cloner
	files    *selector.Selector
	analysis *analyzer.Dispatcher
	deps     *analyzer.DepScanner
	hooks    *webhook.Sender
	queue    *Queue

	stop    context.CancelFunc
	wg      sync.WaitGroup
	cancels sync.Map // jobID -> context.CancelCauseFunc
}

// New wires the pipeline together.
func New(cfg config.Config, st *store.Store, cloner *repository.Cloner, files *selector.Selector,
	analysis *analyzer.Dispatcher, deps *analyzer.DepScanner, hooks *webhook.Sender) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		cloner:   cloner,
		files:    files,
		analysis: analysis,
		deps:     deps,
		hooks:    hooks,
		queue:    NewQueue(cfg.Workers.QueueSize),
	}
}

// Queue exposes the submission queue, mainly for depth reporting.
func (o *Orchestrator) Queue() *Queue { return o.queue }

// Submit validates sub, persists a pending job and enqueues it. A full
// queue rejects with ErrQueueFull before any row is written.
func (o *Orchestrator) Submit(ctx context.Context, sub *models.Submission) (*models.Job, error) {
	sub.Normalize()
	if err := repository.ValidateURL(sub.RepoURL); err != nil {
		return nil, err
	}
	if sub.Webhook != nil {
		if err := sub.Webhook.Validate(); err != nil {
			return nil, err
		}
	}
	if o.queue.Full() {
		return nil, ErrQueueFull
	}

	job, err := o.store.CreateJob(ctx, sub)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.CreateQueueEntry(ctx, job.ID, sub.Priority); err != nil {
		return nil, err
	}

	if err := o.queue.TryEnqueue(&Task{JobID: job.ID, Submission: sub}); err != nil {
		// Lost a race for the last slot; close out the row we just wrote.
		o.store.FinishJob(ctx, job.ID, models.StatusFailed, nil, "submission queue full", nil)
		o.store.FinishQueueEntry(ctx, job.ID, "failed", "submission queue full")
		return nil, err
	}

	slog.Info("Job accepted",
		"job_id", job.ID,
		"repo", sub.RepoURL,
		"team", sub.Team,
		"priority", sub.Priority,
		"queued", o.queue.Len(),
	)
	return job, nil
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.stop = cancel

	workers := o.cfg.Workers.Count
	if workers <= 0 {
		workers = 4
	}
	for i := 1; i <= workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
	slog.Info("Worker pool started", "workers", workers, "queue_capacity", o.queue.capacity)
}

// Stop cancels the pool and waits for in-flight jobs to reach a terminal
// state.
func (o *Orchestrator) Stop() {
	if o.stop != nil {
		o.stop()
	}
	o.wg.Wait()
}

// Cancel requests cancellation of a job. Queued jobs are marked cancelled
// and skipped at dequeue; running jobs are interrupted at the next file
// boundary.
func (o *Orchestrator) Cancel(ctx context.Context, jobID int64) error {
	if err := o.store.CancelJob(ctx, jobID); err != nil {
		return err
	}
	if c, ok := o.cancels.Load(jobID); ok {
		c.(context.CancelCauseFunc)(errCancelled)
	} else {
		o.store.FinishQueueEntry(ctx, jobID, "failed", "cancelled before processing")
	}
	slog.Info("Job cancellation requested", "job_id", jobID)
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, id string) {
	defer o.wg.Done()
	for {
		task, err := o.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		o.process(ctx, id, task)
	}
}

func (o *Orchestrator) process(ctx context.Context, workerID string, task *Task) {
	job, err := o.store.GetJob(dbCtx(ctx), task.JobID)
	if err != nil {
		slog.Error("Dequeued unknown job", "job_id", task.JobID, "error", err)
		return
	}
	if job.Status.Terminal() {
		// Cancelled while queued.
		o.store.FinishQueueEntry(dbCtx(ctx), task.JobID, "failed", string(job.Status))
		return
	}
	wc, err := job.Webhook()
	if err != nil {
		slog.Warn("Stored webhook configuration is unreadable", "job_id", job.ID, "error", err)
	}

	timeout := time.Duration(o.cfg.Analysis.JobTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	timed, timedCancel := context.WithTimeout(ctx, timeout)
	defer timedCancel()
	jobCtx, cancel := context.WithCancelCause(timed)
	defer cancel(nil)
	o.cancels.Store(task.JobID, cancel)
	defer o.cancels.Delete(task.JobID)

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()
	start := time.Now()

	// A panic anywhere in the pipeline must still leave a terminal record.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job pipeline panic", "job_id", task.JobID, "worker", workerID, "panic", r)
			o.finalize(task.JobID, wc, models.StatusFailed, nil, fmt.Sprintf("internal error: %v", r), nil, start)
		}
	}()

	if err := o.store.MarkProcessing(dbCtx(ctx), job.ID); err != nil {
		slog.Warn("Failed to mark job processing", "job_id", job.ID, "error", err)
	}
	o.store.ClaimQueueEntry(dbCtx(ctx), job.ID, workerID)
	slog.Info("Job started", "job_id", job.ID, "worker", workerID, "repo", job.RepoURL, "attempt", task.Attempt+1)
	o.hooks.Send(jobCtx, wc, job.ID, "started", map[string]any{"repo_url": job.RepoURL})

	ws, err := o.cloner.Clone(jobCtx, task.Submission)
	if err != nil {
		o.resolveCloneFailure(ctx, jobCtx, task, wc, fmt.Errorf("clone: %w", err), start)
		return
	}
	defer o.cloner.Cleanup(ws)
	o.store.SetCommit(dbCtx(ctx), job.ID, ws.Commit)

	sel, err := o.files.Select(ws.Path, task.Submission.IncludePatterns, task.Submission.ExcludePatterns)
	if err != nil {
		o.finalize(job.ID, wc, models.StatusFailed, nil, fmt.Sprintf("file selection: %v", err), nil, start)
		return
	}
	slog.Info("Files selected",
		"job_id", job.ID, "files", len(sel.Files), "skipped", sel.Skipped, "truncated", sel.Truncated)

	var findings []models.Finding
	for i, f := range sel.Files {
		// Cancellation and the job timeout are honoured between files.
		if jobCtx.Err() != nil {
			o.finishInterrupted(job.ID, wc, jobCtx, findings, sel, ws, start, timeout)
			return
		}
		out, err := o.analysis.AnalyzeFile(jobCtx, f.AbsPath, f.RelPath)
		if err != nil {
			if jobCtx.Err() != nil {
				o.finishInterrupted(job.ID, wc, jobCtx, findings, sel, ws, start, timeout)
				return
			}
			slog.Warn("File analysis failed", "job_id", job.ID, "file", f.RelPath, "error", err)
			continue
		}
		findings = append(findings, out...)
		if (i+1)%progressEvery == 0 {
			o.hooks.Send(jobCtx, wc, job.ID, "progress", map[string]any{
				"files_scanned": i + 1,
				"total_files":   len(sel.Files),
				"findings":      len(findings),
			})
		}
	}

	if o.cfg.Analysis.DependencyScan && jobCtx.Err() == nil {
		findings = append(findings, o.deps.Scan(jobCtx, ws.Path)...)
	}

	summary := models.BuildSummary(findings, len(sel.Files), sel.Truncated, ws.SizeBytes, time.Since(start))
	o.finalize(job.ID, wc, models.StatusCompleted, summary, "", findings, start)
}

// resolveCloneFailure separates an operator cancel arriving mid-clone from
// a genuine clone failure. The aborted clone surfaces as an error, but the
// job must end up cancelled, not failed.
func (o *Orchestrator) resolveCloneFailure(ctx, jobCtx context.Context, task *Task,
	wc *models.WebhookConfig, err error, start time.Time) {

	if errors.Is(context.Cause(jobCtx), errCancelled) {
		o.finalize(task.JobID, wc, models.StatusCancelled, nil, "cancelled by request", nil, start)
		return
	}
	o.failOrRetry(ctx, task, wc, err, start)
}

// failOrRetry re-queues transient clone failures while retry budget remains;
// anything else is terminal.
func (o *Orchestrator) failOrRetry(ctx context.Context, task *Task, wc *models.WebhookConfig, err error, start time.Time) {
	transient := errors.Is(err, repository.ErrCloneFailed) && ctx.Err() == nil
	if transient && task.Attempt < o.cfg.Workers.MaxRetries {
		task.Attempt++
		if _, rqErr := o.store.RequeueEntry(dbCtx(ctx), task.JobID, err.Error()); rqErr != nil {
			slog.Warn("Failed to requeue job", "job_id", task.JobID, "error", rqErr)
		}
		o.store.ResetPending(dbCtx(ctx), task.JobID)
		if qErr := o.queue.TryEnqueue(task); qErr == nil {
			slog.Warn("Job requeued after transient failure",
				"job_id", task.JobID, "attempt", task.Attempt, "error", err)
			return
		}
		// Queue filled up in the meantime; fall through to terminal failure.
	}
	o.finalize(task.JobID, wc, models.StatusFailed, nil, err.Error(), nil, start)
}

// finishInterrupted resolves a job that stopped mid-analysis, either by
// cancel or by the job timeout.
func (o *Orchestrator) finishInterrupted(jobID int64, wc *models.WebhookConfig, jobCtx context.Context,
	findings []models.Finding, sel *selector.Result, ws *repository.Workspace, start time.Time, timeout time.Duration) {

	cause := context.Cause(jobCtx)
	if errors.Is(cause, errCancelled) {
		summary := models.BuildSummary(findings, len(sel.Files), sel.Truncated, ws.SizeBytes, time.Since(start))
		summary.Error = "cancelled"
		o.finalize(jobID, wc, models.StatusCancelled, summary, "cancelled by request", findings, start)
		return
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		o.finalize(jobID, wc, models.StatusFailed, nil, fmt.Sprintf("job timed out after %s", timeout), findings, start)
		return
	}
	// Service shutdown.
	o.finalize(jobID, wc, models.StatusFailed, nil, "interrupted by shutdown", nil, start)
}

// finalize writes the terminal state and sends the closing webhook. The
// terminal write is retried: losing a finished job's result to a transient
// database error would violate the one-terminal-state guarantee.
func (o *Orchestrator) finalize(jobID int64, wc *models.WebhookConfig, status models.JobStatus,
	summary *models.Summary, errMsg string, findings []models.Finding, start time.Time) {

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt, wait := 1, time.Second; attempt <= 3; attempt, wait = attempt+1, wait*2 {
		err = o.store.FinishJob(ctx, jobID, status, summary, errMsg, findings)
		if err == nil || errors.Is(err, store.ErrSuperseded) {
			break
		}
		slog.Warn("Terminal state write failed", "job_id", jobID, "attempt", attempt, "error", err)
		time.Sleep(wait)
	}
	if errors.Is(err, store.ErrSuperseded) {
		// A concurrent cancel already recorded the terminal state; keep it
		// and skip this outcome's webhook.
		slog.Info("Terminal state already recorded", "job_id", jobID, "attempted", status)
		o.store.FinishQueueEntry(ctx, jobID, "failed", errMsg)
		return
	}
	if err != nil {
		slog.Error("Giving up persisting terminal job state; record is stale",
			"job_id", jobID, "status", status, "error", err)
	}

	queueStatus := "completed"
	if status != models.StatusCompleted {
		queueStatus = "failed"
	}
	o.store.FinishQueueEntry(ctx, jobID, queueStatus, errMsg)

	metrics.JobsTotal.WithLabelValues(string(status)).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	switch status {
	case models.StatusCompleted:
		slog.Info("Job completed",
			"job_id", jobID, "findings", summary.TotalFindings, "files", summary.TotalFilesScanned,
			"duration", time.Since(start).Round(time.Millisecond))
		o.hooks.Send(ctx, wc, jobID, "completed", summary)
	default:
		slog.Warn("Job did not complete", "job_id", jobID, "status", status, "error", errMsg)
		o.hooks.Send(ctx, wc, jobID, "failed", map[string]any{"status": string(status), "error": errMsg})
	}
}

// Recover re-enqueues jobs left pending or processing by a previous
// process. Clone options that lived only in memory (depth, submodules,
// file patterns) fall back to their defaults.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	var jobs []models.Job
	for _, status := range []models.JobStatus{models.StatusProcessing, models.StatusPending} {
		batch, _, err := o.store.ListJobs(ctx, store.JobFilter{Status: status, Limit: 200})
		if err != nil {
			return 0, err
		}
		jobs = append(jobs, batch...)
	}

	n := 0
	for i := range jobs {
		job := &jobs[i]
		if job.Status == models.StatusProcessing {
			if err := o.store.ResetPending(ctx, job.ID); err != nil {
				slog.Warn("Failed to reset interrupted job", "job_id", job.ID, "error", err)
				continue
			}
			if _, err := o.store.RequeueEntry(ctx, job.ID, "interrupted by restart"); err != nil {
				slog.Warn("Failed to requeue interrupted job", "job_id", job.ID, "error", err)
			}
		}
		sub := &models.Submission{
			RepoURL:   job.RepoURL,
			Team:      job.Team,
			Leader:    job.Leader,
			Branch:    job.Branch,
			Tag:       job.Tag,
			CommitSHA: job.CommitSHA,
			Priority:  job.Priority,
			Depth:     1,
		}
		if err := o.queue.TryEnqueue(&Task{JobID: job.ID, Submission: sub}); err != nil {
			slog.Warn("Recovery stopped at full queue", "job_id", job.ID, "recovered", n)
			return n, nil
		}
		n++
	}
	return n, nil
}

// dbCtx returns ctx unless it is already dead; bookkeeping writes should
// survive worker shutdown.
func dbCtx(ctx context.Context) context.Context {
	if ctx != nil && ctx.Err() == nil {
		return ctx
	}
	return context.Background()
}
