package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dealscout/pipeline/internal/domain"
)

// deliveryMessage pairs a webhook delivery task with its broker
// delivery for ACK/NACK.
type deliveryMessage struct {
	task     domain.DeliveryTask
	delivery amqp.Delivery
}

// dispatchJobs reads the jobs queue and hands messages to the job
// pool. Malformed bodies are NACKed without requeue so they cannot
// loop forever.
func (w *Worker) dispatchJobs(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Job dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Job dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ job delivery channel closed")
				return
			}

			var msg domain.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse job message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				w.nack(delivery, false)
				continue
			}

			if _, err := uuid.Parse(msg.JobID); err != nil {
				w.logger.Error("Invalid job_id format - not a UUID",
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)
				w.nack(delivery, false)
				continue
			}

			msg.DeliveryTag = delivery.DeliveryTag
			jobMsg := msg

			select {
			case w.jobsChan <- &jobMsg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Job dispatcher stopped while dispatching")
				w.nack(delivery, true)
				return
			}
		}
	}
}

// dispatchDeliveries reads the webhook delivery queue and hands tasks
// to the delivery pool.
func (w *Worker) dispatchDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Delivery dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Delivery dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ webhook delivery channel closed")
				return
			}

			var task domain.DeliveryTask
			if err := json.Unmarshal(delivery.Body, &task); err != nil {
				w.logger.Error("Failed to parse delivery task JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				w.nack(delivery, false)
				continue
			}

			if task.SubscriptionID == "" || task.EventType == "" {
				w.logger.Error("Delivery task missing subscription or event type",
					slog.String("body", string(delivery.Body)),
				)
				w.nack(delivery, false)
				continue
			}

			select {
			case w.deliveryChan <- deliveryMessage{task: task, delivery: delivery}:
				w.logger.Debug("Delivery task dispatched",
					slog.String("subscription_id", task.SubscriptionID),
					slog.String("event_type", task.EventType),
				)
			case <-ctx.Done():
				w.logger.Info("Delivery dispatcher stopped while dispatching")
				w.nack(delivery, true)
				return
			}
		}
	}
}

func (w *Worker) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
