package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	yhttp "github.com/nohjs/Yaksok/internal/adapter/http"
	yknats "github.com/nohjs/Yaksok/internal/adapter/nats"
	"github.com/nohjs/Yaksok/internal/adapter/otel"
	"github.com/nohjs/Yaksok/internal/adapter/postgres"
	"github.com/nohjs/Yaksok/internal/adapter/revision"
	"github.com/nohjs/Yaksok/internal/adapter/ristretto"
	"github.com/nohjs/Yaksok/internal/adapter/ws"
	"github.com/nohjs/Yaksok/internal/config"
	"github.com/nohjs/Yaksok/internal/logger"
	"github.com/nohjs/Yaksok/internal/middleware"
	"github.com/nohjs/Yaksok/internal/resilience"
	"github.com/nohjs/Yaksok/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_rounds", cfg.Negotiation.MaxRounds,
	)

	ctx := context.Background()

	// --- Observability ---
	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("otel shutdown", "error", err)
			}
		}()

		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := yknats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Snapshot cache
	snapCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer snapCache.Close()

	// Revision service client
	revClient := revision.NewClient(cfg.Reviser.URL, cfg.Reviser.APIKey, cfg.Reviser.Timeout)
	revClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	finalSvc := service.NewFinalizationService(store, queue, hub)
	negSvc := service.NewNegotiationService(store, revClient, queue, hub, cfg.Negotiation, finalSvc)
	selSvc := service.NewSelectionService(store, queue)
	snapSvc := service.NewSnapshotService(store, snapCache, cfg.Cache.TTL)

	if metrics != nil {
		finalSvc.SetMetrics(metrics)
		negSvc.SetMetrics(metrics)
		selSvc.SetMetrics(metrics)
	}

	// Start the round-ready subscriber (drives round transitions off the queue)
	cancelRounds, err := negSvc.StartRoundSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("round subscriber: %w", err)
	}
	defer cancelRounds()

	// --- HTTP ---
	handlers := &yhttp.Handlers{
		Negotiations: negSvc,
		Selections:   selSvc,
		Finals:       finalSvc,
		Snapshots:    snapSvc,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(yhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(yhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	// Health endpoint with dependency status
	r.Get("/health", healthHandler(pool, queue))

	// WebSocket endpoint for negotiation events
	r.Get("/ws", hub.HandleWS)

	// API routes
	yhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports dependency health.
func healthHandler(pool *pgxpool.Pool, queue *yknats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok"}

		if err := pool.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "disconnected"
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
