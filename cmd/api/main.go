package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/swimlog/internal/api"
	"example.com/swimlog/internal/auth"
	"example.com/swimlog/internal/config"
	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/observability"
	"example.com/swimlog/internal/outbox"
	persistence "example.com/swimlog/internal/persistence/postgres"
	httptransport "example.com/swimlog/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger("swimlog-api", cfg.LogLevel)

	if err := observability.InitSentry(observability.SentryConfig{DSN: cfg.SentryDSN, Environment: cfg.Environment}, logger); err != nil {
		logger.Error("sentry init failed", "error", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.With("component", "outbox")))
	go dispatcher.Start(ctx)

	replayer := outbox.NewReplayer(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)
	replayDone := make(chan struct{})
	go func() {
		defer close(replayDone)
		replayer.Run(ctx, cfg.DLQPollInterval, cfg.OutboxBatchSize)
	}()

	service := domain.NewService(repo,
		domain.WithLocation(loc),
		domain.WithWeeklyTarget(cfg.WeeklyTarget()),
	)

	handler := api.NewHandler(service, api.WithLogger(logger.With("component", "api")), api.WithLocation(loc))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	limiter := httptransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, func(r *http.Request) string {
		if claims, ok := auth.FromContext(r.Context()); ok {
			return claims.TenantID + ":" + claims.Subject
		}
		return ""
	})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux,
		httptransport.Logging(logger),
		httptransport.CORS(cfg.CORSAllowedOrigin),
		authMiddleware.Wrap,
		limiter.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("swimlog api listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	dispatcher.Wait()
	<-replayDone
}
