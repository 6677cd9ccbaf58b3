package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duangpay/internal/cache"
	"duangpay/internal/catalog"
	"duangpay/internal/config"
	"duangpay/internal/credits"
	"duangpay/internal/httpserver"
	"duangpay/internal/logging"
	"duangpay/internal/metrics"
	"duangpay/internal/order"
	"duangpay/internal/payment"
	"duangpay/internal/repo"
	"duangpay/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting duangpay", "env", cfg.AppEnv, "provider", cfg.PaymentProvider, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := newRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	provider, err := newProvider(cfg, logger, metricRegistry)
	if err != nil {
		return fmt.Errorf("init payment provider: %w", err)
	}

	packages := catalog.Default()

	reconciler := order.NewReconciler(repository, metricRegistry, logger)
	orderSvc := order.New(repository, provider, packages, reconciler, redisClient, metricRegistry, logger)
	gate := credits.NewGate(repository, metricRegistry, logger)

	webhookHandler := payment.NewWebhookHandler(provider, reconciler, logger, metricRegistry)
	api := httpserver.NewAPI(repository, packages, orderSvc, gate, redisClient, metricRegistry, logger)
	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, api, webhookHandler, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

func newRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Repository, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return repo.NewPostgres(ctx, cfg.DatabaseURL, logger)
	case "sqlite":
		return repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	case "memory":
		logger.Warn("using in-memory store, data will not survive restarts")
		return repo.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func newProvider(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (payment.Provider, error) {
	switch cfg.PaymentProvider {
	case "omise":
		return payment.NewOmise(payment.OmiseConfig{
			SecretKey:     cfg.OmiseSecretKey,
			WebhookSecret: cfg.WebhookSecret,
			Timeout:       cfg.ProviderTimeout,
		}, logger, m), nil
	case "stripe":
		return payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.WebhookSecret,
			Timeout:       cfg.ProviderTimeout,
		}, logger, m), nil
	case "scb":
		return payment.NewSCB(payment.SCBConfig{
			BaseURL:       cfg.SCBBaseURL,
			APIKey:        cfg.SCBAPIKey,
			APISecret:     cfg.SCBAPISecret,
			BillerID:      cfg.SCBBillerID,
			WebhookSecret: cfg.WebhookSecret,
			Timeout:       cfg.ProviderTimeout,
		}, logger, m), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
}
