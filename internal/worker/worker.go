// Package worker runs the two consumer pools of the worker service:
// the job pool executing scrape/enrich/matchmake jobs and the webhook
// delivery pool. Both drain RabbitMQ with manual acknowledgment.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealscout/pipeline/internal/adapter"
	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/events"
	"github.com/dealscout/pipeline/internal/metrics"
	"github.com/dealscout/pipeline/internal/vendorcall"
	"github.com/dealscout/pipeline/internal/webhook"
	"github.com/dealscout/pipeline/internal/worker/storage"
	"github.com/dealscout/pipeline/shared/postgresql"
	"github.com/dealscout/pipeline/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
	Registry     *metrics.Registry
	Gateway      *vendorcall.Gateway
	Adapters     *adapter.Registry

	Concurrency         int
	DeliveryConcurrency int
	PrefetchCount       int
	JobTimeout          time.Duration
	MatchScoreThreshold float64

	DeliveryPolicy webhook.DelivererConfig
}

// Worker represents the background worker service: consumers, pools,
// and the in-process event plumbing between them.
type Worker struct {
	logger       *slog.Logger
	rabbitClient *rabbitmq.Client
	registry     *metrics.Registry

	processor *Processor
	deliverer *webhook.Deliverer
	trigger   *MatchTrigger
	bus       *events.Bus

	workerID            string
	concurrency         int
	deliveryConcurrency int
	prefetchCount       int

	jobsChan     chan *domain.JobMessage
	deliveryChan chan deliveryMessage

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewWorker creates a worker and wires the event bus subscribers: the
// webhook emitter fans completed/failed events out to subscribers, and
// the matchmaking trigger watches enrichment outcomes.
func NewWorker(cfg *Config) *Worker {
	db := cfg.DBClient.GetDB()
	store := storage.NewStorage(db, cfg.Logger)
	webhookStore := webhook.NewStore(db)

	bus := events.NewBus(cfg.Logger)
	emitter := webhook.NewEmitter(cfg.Logger, webhookStore, cfg.RabbitClient, cfg.Registry)

	processor := NewProcessor(
		cfg.Logger, store, cfg.RabbitClient, cfg.Adapters, cfg.Gateway,
		bus, cfg.Registry, cfg.JobTimeout,
	)
	deliverer := webhook.NewDeliverer(cfg.Logger, webhookStore, cfg.Registry, cfg.DeliveryPolicy)
	trigger := NewMatchTrigger(cfg.Logger, store, cfg.RabbitClient, cfg.Registry, cfg.MatchScoreThreshold)

	for _, eventType := range []string{
		domain.EventJobCompleted,
		domain.EventJobFailed,
		domain.EventEnrichmentCompleted,
		domain.EventMatchmakingComplete,
	} {
		bus.Subscribe(eventType, func(ctx context.Context, ev domain.Event) error {
			_, err := emitter.Emit(ctx, ev)
			return err
		})
	}
	bus.Subscribe(domain.EventEnrichmentCompleted, trigger.Handle)

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	deliveryConcurrency := cfg.DeliveryConcurrency
	if deliveryConcurrency <= 0 {
		deliveryConcurrency = 2
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency + deliveryConcurrency
	}

	return &Worker{
		logger:              cfg.Logger,
		rabbitClient:        cfg.RabbitClient,
		registry:            cfg.Registry,
		processor:           processor,
		deliverer:           deliverer,
		trigger:             trigger,
		bus:                 bus,
		workerID:            "worker-" + uuid.New().String()[:8],
		concurrency:         concurrency,
		deliveryConcurrency: deliveryConcurrency,
		prefetchCount:       prefetch,
		jobsChan:            make(chan *domain.JobMessage),
		deliveryChan:        make(chan deliveryMessage),
		stopChan:            make(chan struct{}),
	}
}

// Start begins consuming until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("delivery_concurrency", w.deliveryConcurrency),
	)

	if err := w.rabbitClient.SetQoS(w.prefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	jobDeliveries, err := w.rabbitClient.ConsumeJobs(w.workerID + "-jobs")
	if err != nil {
		return fmt.Errorf("failed to start job consumer: %w", err)
	}

	webhookDeliveries, err := w.rabbitClient.ConsumeDeliveries(w.workerID + "-deliveries")
	if err != nil {
		return fmt.Errorf("failed to start delivery consumer: %w", err)
	}

	w.spawnJobPool(ctx)
	w.spawnDeliveryPool(ctx)

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.dispatchJobs(ctx, jobDeliveries)
	}()
	go func() {
		defer w.wg.Done()
		w.dispatchDeliveries(ctx, webhookDeliveries)
	}()

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
