package handler

import (
	"log/slog"

	"github.com/dealscout/pipeline/internal/api/storage"
	"github.com/dealscout/pipeline/internal/bulk"
	"github.com/dealscout/pipeline/internal/metrics"
	"github.com/dealscout/pipeline/internal/webhook"
	"github.com/dealscout/pipeline/shared/postgresql"
	"github.com/dealscout/pipeline/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
	Registry     *metrics.Registry
	// KnownSources is the adapter source list accepted for scrape jobs.
	KnownSources []string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	storage  *storage.Storage
	enqueuer *EnqueueService
	planner  *bulk.Planner
	registry *metrics.Registry
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	store := storage.NewStorage(deps.DBClient.GetDB())
	enqueuer := NewEnqueueService(deps.Logger, store, deps.RabbitClient, deps.Registry)
	planner := bulk.NewPlanner(deps.Logger, store, enqueuer, deps.KnownSources, deps.Registry)

	return &JobHandler{
		logger:   deps.Logger,
		storage:  store,
		enqueuer: enqueuer,
		planner:  planner,
		registry: deps.Registry,
	}
}

// WebhookHandler handles webhook subscription and replay requests
type WebhookHandler struct {
	logger   *slog.Logger
	store    *webhook.Store
	replayer *webhook.Replayer
	registry *metrics.Registry
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	store := webhook.NewStore(deps.DBClient.GetDB())
	replayer := webhook.NewReplayer(deps.Logger, store, deps.RabbitClient, deps.Registry)

	return &WebhookHandler{
		logger:   deps.Logger,
		store:    store,
		replayer: replayer,
		registry: deps.Registry,
	}
}
