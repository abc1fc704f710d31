// server is the Productboard MCP server binary. It exposes the Productboard
// REST API as MCP tools over stdio or HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fredcamaral/gomcp-sdk/transport"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"productboard-mcp/internal/circuitbreaker"
	"productboard-mcp/internal/config"
	"productboard-mcp/internal/entities"
	"productboard-mcp/internal/logging"
	"productboard-mcp/internal/mcp"
	"productboard-mcp/internal/metrics"
	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/ratelimit"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/retry"
	pbsearch "productboard-mcp/internal/search"
	"productboard-mcp/internal/session"
	"productboard-mcp/internal/tools"
	"productboard-mcp/internal/tools/features"
	"productboard-mcp/internal/tools/notes"
	"productboard-mcp/internal/tools/objectives"
	"productboard-mcp/internal/tools/releases"
	"productboard-mcp/internal/tools/search"
	"productboard-mcp/internal/tools/system"
	"productboard-mcp/internal/tools/webhooks"
)

// version is set at build time
var version = "dev"

func main() {
	var (
		mode = flag.String("mode", "", "Server mode: stdio or http (overrides MCP_TRANSPORT)")
		addr = flag.String("addr", "", "HTTP listen address (overrides MCP_HOST and MCP_PORT)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Server.Transport = *mode
	}

	logger := newLogger(cfg)
	logging.SetDefaultLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	a.start(ctx)
	defer a.stop()

	go a.reloadOnHangup(ctx)

	switch cfg.Server.Transport {
	case "stdio":
		logger.Info("starting Productboard MCP server", "mode", "stdio", "version", version)
		err = a.server.ServeStdio(ctx, transport.NewStdioTransport())
	case "http":
		listen := *addr
		if listen == "" {
			listen = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		logger.Info("starting Productboard MCP server", "mode", "http", "addr", listen, "version", version)
		err = a.serveHTTP(ctx, listen)
	default:
		err = fmt.Errorf("invalid mode %q: use stdio or http", cfg.Server.Transport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", "error", err)
		a.stop()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(logging.Options{
		Level: logging.ParseLogLevel(cfg.Logging.Level),
		JSON:  strings.EqualFold(cfg.Logging.Format, "json"),
	})
}

// app holds the wired components of one server process
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.SlidingWindow
	sessions *session.Manager
	registry *registry.Registry
	pool     *productboard.Pool
	server   *mcp.Server
}

func newApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	var m *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		m = metrics.New()
	}

	entityRegistry, err := entities.LoadRegistry(cfg.Tools.EntityMappingsPath)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimiterConfig())

	pool := productboard.NewPool(productboard.Options{
		Timeout: cfg.RequestTimeoutDuration(),
		Retry:   retryConfig(cfg.Resilience),
		Breaker: &circuitbreaker.Config{
			FailureThreshold: cfg.Resilience.BreakerThreshold,
			Cooldown:         time.Duration(cfg.Resilience.BreakerCooldown) * time.Second,
		},
		Limiter: limiter,
		Metrics: m,
		Logger:  logger,
	})

	reg, err := buildRegistry(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	var sessions *session.Manager
	sessions = session.NewManager(session.Config{
		IdleTimeout:   time.Duration(cfg.Server.SessionTimeout) * time.Second,
		SweepInterval: time.Duration(cfg.Server.SessionSweepInterval) * time.Second,
		OnRemove:      func(string) { m.SetActiveSessions(sessions.ActiveSessionCount()) },
	}, logger)

	search.NewHandler(pbsearch.NewEngine(entityRegistry, cfg.Resilience.MaxPages, logger), m).Register(reg)
	system.NewHandler(sessions, reg, pool, limiter, version).Register()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		limiter:  limiter,
		sessions: sessions,
		registry: reg,
		pool:     pool,
	}
	a.server = mcp.NewServer(mcp.Options{
		Config:   cfg,
		Registry: reg,
		Sessions: sessions,
		Pool:     pool,
		Metrics:  m,
		Logger:   logger,
		Version:  version,
	})
	return a, nil
}

func retryConfig(rc config.ResilienceConfig) *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = rc.MaxAttempts
	if rc.InitialDelayMs > 0 {
		cfg.InitialDelay = time.Duration(rc.InitialDelayMs) * time.Millisecond
	}
	if rc.MaxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	}
	return cfg
}

// buildRegistry loads the catalog and binds every category to its module.
// Modules are constructed on first use.
func buildRegistry(cfg *config.Config, logger logging.Logger, m *metrics.Metrics) (*registry.Registry, error) {
	reg := registry.New(cfg.Tools.EnabledCategories, registry.Options{Logger: logger})

	if cfg.Tools.ManifestPath != "" {
		if err := reg.LoadManifest(cfg.Tools.ManifestPath); err != nil {
			return nil, err
		}
	} else if err := reg.LoadManifestBytes(registry.DefaultManifest()); err != nil {
		return nil, err
	}

	ep := tools.NewEndpoint(tools.Options{
		MaxPages: cfg.Resilience.MaxPages,
		Metrics:  m,
		Logger:   logger,
	})
	modules := map[string]func(*tools.Endpoint) registry.Module{
		features.Category:   features.NewModule,
		notes.Category:      notes.NewModule,
		releases.Category:   releases.NewModule,
		objectives.Category: objectives.NewModule,
		webhooks.Category:   webhooks.NewModule,
	}
	for category, newModule := range modules {
		newModule := newModule
		reg.RegisterModule(category, func() (registry.Module, error) {
			return newModule(ep), nil
		})
	}

	added := reg.RegisterFromManifest()
	logger.Info("tool catalog loaded", "operations", added, "categories", reg.Categories())
	return reg, nil
}

func (a *app) start(ctx context.Context) {
	a.limiter.Start(ctx)
	a.sessions.Start(ctx)
}

func (a *app) stop() {
	a.sessions.Stop()
	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("failed to stop rate limiter", "error", err)
	}
}

// reloadOnHangup re-reads PRODUCTBOARD_ENABLED_CATEGORIES on SIGHUP and
// swaps the registry allow-list without dropping sessions.
func (a *app) reloadOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			a.reloadCategories(os.Getenv("PRODUCTBOARD_ENABLED_CATEGORIES"))
		}
	}
}

func (a *app) reloadCategories(raw string) {
	var categories []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	a.registry.UpdateEnabledCategories(categories)
}

// router serves MCP, health and metrics endpoints
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestSize(10 * 1024 * 1024))

	r.Handle("/mcp", a.server)
	r.Get("/health", a.handleHealth)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "healthy"
	for _, c := range a.pool.Clients() {
		if c.Breaker().GetState() != circuitbreaker.StateClosed {
			status = "degraded"
		}
	}
	_, _ = fmt.Fprintf(w, `{"status":%q,"server":%q,"version":%q,"sessions":%d}`,
		status, mcp.ServerName, version, a.sessions.ActiveSessionCount())
}

func (a *app) serveHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "mcp", "http://"+addr+"/mcp", "health", "http://"+addr+"/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already cancelled
}
