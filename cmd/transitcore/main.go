package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	tchttp "github.com/fleetops/transitcore/internal/adapter/http"
	tcnats "github.com/fleetops/transitcore/internal/adapter/nats"
	"github.com/fleetops/transitcore/internal/adapter/ors"
	"github.com/fleetops/transitcore/internal/adapter/postgres"
	"github.com/fleetops/transitcore/internal/adapter/ws"
	"github.com/fleetops/transitcore/internal/config"
	"github.com/fleetops/transitcore/internal/logger"
	"github.com/fleetops/transitcore/internal/middleware"
	"github.com/fleetops/transitcore/internal/schedule"
	"github.com/fleetops/transitcore/internal/service"
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

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

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

	queue, err := tcnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	router, err := ors.New(ors.Config{
		BaseURL:      cfg.Routing.BaseURL,
		APIKey:       cfg.Routing.APIKey,
		Profile:      cfg.Routing.Profile,
		Timeout:      cfg.Routing.Timeout,
		CacheMaxMB:   cfg.Routing.CacheMaxMB,
		CacheTTL:     cfg.Routing.CacheTTL,
		BreakerMax:   cfg.Routing.BreakerMax,
		BreakerReset: cfg.Routing.BreakerReset,
	})
	if err != nil {
		return fmt.Errorf("routing client: %w", err)
	}

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	outbox := postgres.NewOutbox(pool)
	recurrence := schedule.NewEngine(log)

	runSvc := service.NewRunService(store, outbox, queue, router, recurrence, hub,
		cfg.Scheduler.RouteTimeout, log)

	notifSvc := service.NewNotificationService(queue, nil, log)
	cancelNotif, err := notifSvc.Start(ctx)
	if err != nil {
		return fmt.Errorf("notification subscriber: %w", err)
	}
	defer cancelNotif()

	replayer := service.NewReplayer(outbox, queue, store, recurrence, cfg.Scheduler.ReplayBatch, log)
	if err := replayer.Start(cfg.Scheduler.ReplayEvery); err != nil {
		return fmt.Errorf("replayer: %w", err)
	}
	defer replayer.Stop()

	// --- HTTP ---

	handlers := &tchttp.Handlers{Runs: runSvc}

	r := chi.NewRouter()
	r.Use(tchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tchttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(pool.Ping, queue.IsConnected))
	r.Get("/ws", hub.HandleWS)

	tchttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := queue.Drain(); err != nil {
			slog.Warn("queue drain failed", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// healthHandler reports connectivity of the store and the message queue.
func healthHandler(ping func(context.Context) error, connected func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overall, pg, mq := "ok", "ok", "ok"
		status := http.StatusOK

		if err := ping(r.Context()); err != nil {
			overall, pg = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
		if !connected() {
			overall, mq = "degraded", "disconnected"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"postgres":%q,"nats":%q}`, overall, pg, mq)
	}
}
