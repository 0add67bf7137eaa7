package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lintagent/lintagent/internal/analyzer"
	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/ratelimit"
)

// Housekeeper runs periodic maintenance: reaping leaked clone workspaces,
// pruning expired cache rows and sweeping the in-memory rate limiter.
type Housekeeper struct {
	cfg     config.CleanupConfig
	root    string
	cache   analyzer.Cache
	limiter *ratelimit.MemoryLimiter // nil when the Redis backend is active
	cron    *cron.Cron
}

// NewHousekeeper creates a Housekeeper. limiter may be nil.
func NewHousekeeper(cfg config.CleanupConfig, workspaceRoot string, cache analyzer.Cache, limiter *ratelimit.MemoryLimiter) *Housekeeper {
	return &Housekeeper{
		cfg:     cfg,
		root:    workspaceRoot,
		cache:   cache,
		limiter: limiter,
		cron:    cron.New(),
	}
}

// Start registers the maintenance jobs and starts the cron runner.
func (h *Housekeeper) Start() error {
	if !h.cfg.Enabled {
		slog.Info("Housekeeping disabled")
		return nil
	}
	if _, err := h.cron.AddFunc("@every 1h", h.run); err != nil {
		return err
	}
	h.cron.Start()
	slog.Info("Housekeeping started", "interval", "1h", "workspace_root", h.root)
	return nil
}

// Stop halts the cron runner.
func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

func (h *Housekeeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	reaped := h.reapWorkspaces()
	if reaped > 0 {
		slog.Info("Reaped stale workspaces", "count", reaped)
	}
	if h.cache != nil {
		if err := h.cache.Prune(ctx); err != nil {
			slog.Warn("Cache prune failed", "error", err)
		}
	}
	if h.limiter != nil {
		h.limiter.Sweep()
	}
}

// reapWorkspaces removes clone directories older than the configured age.
// Workspaces normally delete themselves when a job finishes; this catches
// the ones orphaned by a crash.
func (h *Housekeeper) reapWorkspaces() int {
	maxAge := time.Duration(h.cfg.WorkspaceMaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(h.root)
	if err != nil {
		slog.Warn("Cannot read workspace root", "path", h.root, "error", err)
		return 0
	}

	reaped := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "lintagent-") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(h.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to reap workspace", "path", path, "error", err)
			continue
		}
		reaped++
	}
	return reaped
}
