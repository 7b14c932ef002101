package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"example.com/swimlog/internal/config"
	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/observability"
	persistence "example.com/swimlog/internal/persistence/postgres"
	"example.com/swimlog/internal/store"
	"example.com/swimlog/internal/syncer"
)

func main() {
	once := flag.Bool("once", false, "sync every configured owner once and exit")
	flag.Parse()

	cfg := config.Load()
	logger := observability.NewLogger("swimlog-importer", cfg.LogLevel)

	if err := observability.InitSentry(observability.SentryConfig{DSN: cfg.SentryDSN, Environment: cfg.Environment}, logger); err != nil {
		logger.Error("sentry init failed", "error", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	if len(cfg.SyncOwners) == 0 {
		logger.Error("SYNC_OWNERS is empty, nothing to import")
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	service := domain.NewService(persistence.NewRepository(pool), domain.WithLocation(loc))
	job := syncer.New(store.NewClient(cfg.StoreURL, cfg.StoreTimeout), service, logger)

	runAll := func() {
		if err := job.SyncAll(ctx, cfg.SyncOwners); err != nil && !errors.Is(err, context.Canceled) {
			observability.CaptureError(err, nil, map[string]string{"component": "importer"})
		}
	}

	if *once {
		runAll()
		return
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("importer metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	scheduler := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(cfg.SyncSchedule, runAll); err != nil {
		logger.Error("invalid sync schedule", "schedule", cfg.SyncSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("importer scheduled", "schedule", cfg.SyncSchedule, "owners", len(cfg.SyncOwners))

	<-ctx.Done()
	logger.Info("importer shutdown requested")

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
}
