// Command syncagent runs a headless realtime sync client for one dashboard
// identity: it keeps the event stream flowing (socket with polling
// fallback), replays the offline action queue, and exposes health and
// metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shiftgrid/realtime/internal/api"
	"github.com/shiftgrid/realtime/internal/auth"
	"github.com/shiftgrid/realtime/internal/bus"
	"github.com/shiftgrid/realtime/internal/config"
	"github.com/shiftgrid/realtime/internal/model"
	"github.com/shiftgrid/realtime/internal/platform"
	"github.com/shiftgrid/realtime/internal/queue"
	"github.com/shiftgrid/realtime/internal/realtime"
	"github.com/shiftgrid/realtime/internal/storage"
	"github.com/shiftgrid/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncagent.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncagent",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	identity := model.Identity{Role: cfg.Identity.Role, ID: cfg.Identity.ID}

	logger.Info("configuration loaded",
		"identity", identity.Key(),
		"rest_url", cfg.Server.RestURL,
		"storage", cfg.Storage.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, cleanup, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to open queue storage", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	actions, err := queue.New(ctx, identity.Key(), store, logger)
	if err != nil {
		logger.Error("failed to restore offline queue", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewRefreshGuard(auth.NewStaticTokenSource(cfg.Auth.Token))

	apiClient := api.NewClient(
		cfg.Server.RestURL,
		tokens,
		api.WithLogger(logger),
		api.WithTimeout(30*time.Second),
		api.WithRetries(3, time.Second),
	)

	registry := bus.New(logger)

	probe := platform.NewProbe(cfg.Probe.URL, cfg.Probe.Interval, logger)
	probe.Start(ctx)
	defer probe.Stop()

	managerCfg := realtime.Config{
		WSBase:               cfg.Server.WSURL,
		ReconnectBaseDelay:   cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Connection.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		PongTimeout:          cfg.Connection.PongTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		BufferSize:           cfg.Connection.BufferSize,
		PollInterval:         cfg.Connection.PollInterval,
		PollTimeout:          10 * time.Second,
	}

	manager := realtime.New(managerCfg, identity, tokens, apiClient, registry, actions, probe, logger)

	if err := manager.Initialize(ctx); err != nil {
		logger.Error("failed to initialize realtime manager", "error", err)
		os.Exit(1)
	}
	defer manager.Destroy()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newRouter(cfg.Metrics.Path, manager, logger),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("syncagent running",
		"identity", identity.Key(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("syncagent exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("syncagent stopped")
}

// buildStore opens the configured queue storage backend.
func buildStore(ctx context.Context, cfg config.StorageConfig) (queue.Store, func(), error) {
	switch cfg.Backend {
	case "file":
		store, err := storage.NewFileStore(cfg.Dir)
		return store, func() {}, err

	case "postgres":
		pool, err := storage.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		store, err := storage.NewPGStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case "memory":
		return storage.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newRouter builds the agent's HTTP surface: health and Prometheus metrics.
func newRouter(metricsPath string, manager *realtime.Manager, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		stats := manager.Stats()

		health := struct {
			Status           string                `json:"status"`
			State            model.ConnectionState `json:"connection_state"`
			QueueDepth       int                   `json:"queue_depth"`
			EventsDispatched int64                 `json:"events_dispatched"`
			Reconnects       int64                 `json:"reconnects"`
			Version          string                `json:"version"`
		}{
			State:            stats.State,
			QueueDepth:       stats.QueueDepth,
			EventsDispatched: stats.EventsDispatched,
			Reconnects:       stats.Reconnects,
			Version:          version.Version,
		}

		switch stats.State {
		case model.StateConnected:
			health.Status = "healthy"
		case model.StatePolling:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	r.Post("/reconnect", func(w http.ResponseWriter, req *http.Request) {
		if err := manager.Reconnect(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Handle(metricsPath, promhttp.Handler())

	return r
}
