package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lintagent/lintagent/internal/analyzer"
	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/internal/gateway"
	"github.com/lintagent/lintagent/internal/orchestrator"
	"github.com/lintagent/lintagent/internal/ratelimit"
	"github.com/lintagent/lintagent/internal/repository"
	"github.com/lintagent/lintagent/internal/selector"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/internal/webhook"
)

var (
	servePort    int
	serveWorkers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lintagent analysis service",
	Long: `Starts the long-running analysis service: a REST API in front of a
bounded priority queue and a fixed worker pool.

Each worker clones the submitted repository, selects source files, runs
the configured analyzers per file (with content-hash result caching),
persists the findings and notifies the submitter's webhook.

Quick API reference:
  POST   /api/v1/jobs                submit a repository for analysis
  POST   /api/v1/jobs/batch          submit up to 50 repositories at once
  GET    /api/v1/jobs                list jobs (?status=&team=&repo_url=)
  GET    /api/v1/jobs/{id}           job detail with summary
  GET    /api/v1/jobs/{id}/findings  findings (?severity=)
  POST   /api/v1/jobs/{id}/cancel    cancel a pending or running job
  DELETE /api/v1/jobs/{id}           delete a finished job
  GET    /api/v1/queue               queue snapshot
  GET    /api/v1/stats               aggregate statistics
  GET    /health                     liveness check
  GET    /metrics                    Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0,
		"number of analysis workers (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveWorkers > 0 {
		cfg.Workers.Count = serveWorkers
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	st := store.New(db)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis at %s: %w", cfg.Redis.Addr, err)
		}
		defer rdb.Close()
	}

	profiles, err := analyzer.LoadProfiles(cfg.Analysis.ProfilePath)
	if err != nil {
		return fmt.Errorf("loading tool profiles: %w", err)
	}
	cache := analyzer.NewCache(db, rdb, time.Duration(cfg.Analysis.CacheTTLSec)*time.Second)
	dispatcher := analyzer.NewDispatcher(cfg.Analysis, cache, analyzer.BuildAnalyzers(profiles))
	for _, name := range dispatcher.Tools(ctx) {
		slog.Info("Analyzer registered", "tool", name)
	}

	cloner := repository.NewCloner(cfg.Git)
	files := selector.New(cfg.Analysis)
	hooks := webhook.NewSender(cfg.Webhook, st)

	var limiter ratelimit.Limiter
	var memLimiter *ratelimit.MemoryLimiter
	if cfg.Limits.RequestsPerMinute > 0 {
		if rdb != nil {
			limiter = ratelimit.NewRedis(rdb, cfg.Limits.RequestsPerMinute)
		} else {
			memLimiter = ratelimit.NewMemory(cfg.Limits.RequestsPerMinute)
			limiter = memLimiter
		}
	}

	orch := orchestrator.New(*cfg, st, cloner, files, dispatcher, analyzer.NewDepScanner(), hooks)

	// Jobs left mid-flight by a previous process are picked up again.
	if requeued, err := orch.Recover(ctx); err != nil {
		slog.Warn("Crash recovery scan failed", "error", err)
	} else if requeued > 0 {
		slog.Info("Recovered interrupted jobs", "count", requeued)
	}

	orch.Start()
	defer orch.Stop()

	keeper := orchestrator.NewHousekeeper(cfg.Cleanup, cloner.WorkspaceRoot(), cache, memLimiter)
	if err := keeper.Start(); err != nil {
		return fmt.Errorf("starting housekeeping: %w", err)
	}
	defer keeper.Stop()

	gw := gateway.New(*cfg, st, orch, hooks, limiter)
	return gw.Start(ctx)
}
