package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dealscout/pipeline/internal/adapter"
	"github.com/dealscout/pipeline/internal/config"
	"github.com/dealscout/pipeline/internal/metrics"
	"github.com/dealscout/pipeline/internal/vendorcall"
	"github.com/dealscout/pipeline/internal/webhook"
	"github.com/dealscout/pipeline/internal/worker"
	"github.com/dealscout/pipeline/shared/logger"
	"github.com/dealscout/pipeline/shared/postgresql"
	"github.com/dealscout/pipeline/shared/rabbitmq"
)

// Per-call amounts reserved against each provider's daily cap.
const (
	zillowScrapeCents      = 25
	countyDeedsScrapeCents = 15
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger := initLogger(&cfg.Logging, "worker-service")

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Metrics registry shared by the pools and the exposition endpoint
	registry := metrics.NewRegistry(cfg.App.Name, cfg.App.Version)

	// Vendor call gateway and the scrape adapters built on it
	gateway := initGateway(&cfg.Vendors, appLogger.Logger, registry)
	adapters := adapter.NewRegistry(
		adapter.NewZillow(gateway, zillowScrapeCents),
		adapter.NewCountyDeeds(gateway, countyDeedsScrapeCents),
	)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Logger,
		DBClient:     dbClient,
		RabbitClient: rabbitClient,
		Registry:     registry,
		Gateway:      gateway,
		Adapters:     adapters,

		Concurrency:         cfg.Worker.Concurrency,
		DeliveryConcurrency: cfg.Worker.DeliveryConcurrency,
		PrefetchCount:       cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:          cfg.Worker.JobTimeout,
		MatchScoreThreshold: cfg.Worker.MatchScoreThreshold,

		DeliveryPolicy: webhook.DelivererConfig{
			MaxAttempts: cfg.Webhooks.MaxAttempts,
			BaseDelay:   cfg.Webhooks.BaseDelay,
			MaxDelay:    cfg.Webhooks.MaxDelay,
			PostTimeout: cfg.Webhooks.PostTimeout,
		},
	})

	// Side HTTP listener for metrics and liveness
	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort, registry, appLogger.Logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed",
				slog.Any("error", err),
			)
		}
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, service string) *logger.Logger {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg, service)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:                 cfg.Host,
		Port:                 cfg.Port,
		User:                 cfg.User,
		Password:             cfg.Password,
		VHost:                cfg.VHost,
		ExchangeName:         cfg.Exchange.Name,
		ExchangeType:         cfg.Exchange.Type,
		JobsQueue:            cfg.Jobs.Name,
		JobsRoutingKey:       cfg.Jobs.RoutingKey,
		DeliveriesQueue:      cfg.Deliveries.Name,
		DeliveriesRoutingKey: cfg.Deliveries.RoutingKey,
		RetryAttempts:        cfg.Connection.RetryAttempts,
		RetryInterval:        cfg.Connection.RetryInterval,
		Heartbeat:            cfg.Connection.Heartbeat,
		ConnectionTimeout:    cfg.Connection.ConnectionTimeout,
		PublishRetries:       cfg.Publish.RetryAttempts,
		PublishRetryDelay:    cfg.Publish.RetryInterval,
		PublishBackoffMult:   cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initGateway builds the vendor call gateway from the vendors section.
func initGateway(cfg *config.VendorsConfig, logger *slog.Logger, registry *metrics.Registry) *vendorcall.Gateway {
	providers := make(map[string]vendorcall.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providers[name] = vendorcall.ProviderConfig{
			BaseURL:       p.BaseURL,
			APIKey:        p.APIKey,
			DailyCapCents: p.DailyCapCents,
			RequestsPerS:  p.RequestsPerS,
			Burst:         p.Burst,
			Timeout:       p.Timeout,
		}
	}

	return vendorcall.NewGateway(vendorcall.Config{
		Providers:   providers,
		CacheTTL:    cfg.CacheTTL,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, logger, registry)
}

// startMetricsServer serves the metrics exposition and a liveness probe
// on a side port. Returns nil when the port is disabled.
func startMetricsServer(port int, registry *metrics.Registry, logger *slog.Logger) *http.Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Metrics server listening",
			slog.String("address", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	return srv
}
