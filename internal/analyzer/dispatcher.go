package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/metrics"
	"github.com/lintagent/lintagent/models"
)

// Dispatcher routes files to analyzers by extension, consulting the content
// cache first. Tool failures and per-file timeouts degrade to zero findings;
// one broken file never fails a job.
type Dispatcher struct {
	cfg       config.AnalysisConfig
	cache     Cache
	byExt     map[string][]Analyzer
	analyzers []Analyzer
}

// NewDispatcher builds the extension routing table.
func NewDispatcher(cfg config.AnalysisConfig, cache Cache, analyzers []Analyzer) *Dispatcher {
	byExt := make(map[string][]Analyzer)
	for _, a := range analyzers {
		for _, ext := range a.Extensions() {
			byExt[strings.ToLower(ext)] = append(byExt[strings.ToLower(ext)], a)
		}
	}
	return &Dispatcher{cfg: cfg, cache: cache, byExt: byExt, analyzers: analyzers}
}

// AnalyzeFile analyzes one file and returns its findings. Results are cached
// by content hash; only non-empty results are written so a transient tool
// outage cannot poison the cache with false negatives.
func (d *Dispatcher) AnalyzeFile(ctx context.Context, absPath, relPath string) ([]models.Finding, error) {
	analyzers := d.byExt[strings.ToLower(filepath.Ext(relPath))]
	if len(analyzers) == 0 {
		return nil, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	hash := hashContent(content)

	if entry, ok := d.cache.Get(ctx, hash); ok {
		metrics.CacheHits.WithLabelValues("hit").Inc()
		// Cached findings may come from the same content at another path.
		out := make([]models.Finding, len(entry.Findings))
		for i, f := range entry.Findings {
			f.FilePath = relPath
			out[i] = f
		}
		return out, nil
	}
	metrics.CacheHits.WithLabelValues("miss").Inc()

	timeout := time.Duration(d.cfg.FileTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var findings []models.Finding
	var language string
	for _, a := range analyzers {
		if !a.Available(ctx) {
			continue
		}
		fileCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := a.Analyze(fileCtx, absPath, relPath)
		cancel()
		if err != nil {
			// Job cancellation propagates; a slow or broken tool does not.
			if ctx.Err() != nil {
				return findings, ctx.Err()
			}
			if errors.Is(fileCtx.Err(), context.DeadlineExceeded) {
				slog.Warn("Analyzer timed out", "tool", a.Name(), "file", relPath, "timeout", timeout)
			} else {
				slog.Warn("Analyzer failed", "tool", a.Name(), "file", relPath, "error", err)
			}
			continue
		}
		metrics.FilesAnalyzed.WithLabelValues(a.Name()).Inc()
		findings = append(findings, result...)
		language = a.Language()
	}

	if len(findings) > 0 {
		d.cache.Put(ctx, hash, &CacheEntry{
			Findings:  findings,
			Language:  language,
			SizeBytes: int64(len(content)),
		})
	}
	return findings, nil
}

// Tools returns the names of analyzers that are actually runnable.
func (d *Dispatcher) Tools(ctx context.Context) []string {
	var names []string
	for _, a := range d.analyzers {
		if a.Available(ctx) {
			names = append(names, a.Name())
		}
	}
	return names
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
