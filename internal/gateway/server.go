package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/orchestrator"
	"github.com/lintagent/lintagent/internal/ratelimit"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/internal/webhook"
)

// Gateway is the REST control plane in front of the orchestrator. It owns
// the HTTP server; the worker pool and housekeeping run independently.
type Gateway struct {
	cfg       config.Config
	store     *store.Store
	orch      *orchestrator.Orchestrator
	hooks     *webhook.Sender
	limiter   ratelimit.Limiter
	keys      *keyCache
	startedAt time.Time
	srv       *http.Server
}

// New creates a Gateway. Call Start() to begin serving.
func New(cfg config.Config, st *store.Store, orch *orchestrator.Orchestrator,
	hooks *webhook.Sender, limiter ratelimit.Limiter) *Gateway {
	return &Gateway{
		cfg:       cfg,
		store:     st,
		orch:      orch,
		hooks:     hooks,
		limiter:   limiter,
		keys:      newKeyCache(st),
		startedAt: time.Now(),
	}
}

// Start binds the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (gw *Gateway) Start(ctx context.Context) error {
	host := gw.cfg.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := gw.cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	gw.srv = &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Gateway listening", "addr", "http://"+addr, "auth_required", gw.cfg.Server.AuthRequired)
	if err := gw.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
