package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dealscout/pipeline/internal/domain"
)

// spawnJobPool spawns the job execution goroutines.
func (w *Worker) spawnJobPool(ctx context.Context) {
	w.logger.Info("Spawning job pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.jobLoop(ctx, i)
	}
}

// spawnDeliveryPool spawns the webhook delivery goroutines.
func (w *Worker) spawnDeliveryPool(ctx context.Context) {
	w.logger.Info("Spawning delivery pool",
		slog.Int("concurrency", w.deliveryConcurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.deliveryConcurrency; i++ {
		w.wg.Add(1)
		go w.deliveryLoop(ctx, i)
	}
}

// jobLoop is the processing loop of one job goroutine.
func (w *Worker) jobLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-job-%d", w.workerID, workerNum)
	w.logger.Info("Job goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Job goroutine stopping",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Job goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
			)

			err := w.processor.Process(ctx, msg)
			w.settle(workerName, msg.JobID, msg.DeliveryTag, err)
		}
	}
}

// deliveryLoop is the processing loop of one delivery goroutine.
func (w *Worker) deliveryLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-delivery-%d", w.workerID, workerNum)
	w.logger.Info("Delivery goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			return

		case <-ctx.Done():
			w.logger.Info("Delivery goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.deliveryChan:
			if !ok {
				return
			}

			err := w.deliverer.Deliver(ctx, msg.task)
			w.settle(workerName, msg.task.EventType, msg.delivery.DeliveryTag, err)
		}
	}
}

// settle ACKs on success and NACKs on failure, requeueing only for
// errors the taxonomy marks retryable.
func (w *Worker) settle(workerName, id string, deliveryTag uint64, err error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
			slog.String("worker_name", workerName),
			slog.String("id", id),
		)
		return
	}

	if err != nil {
		requeue := shouldRequeue(err)
		w.logger.Error("Processing failed",
			slog.String("worker_name", workerName),
			slog.String("id", id),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		if nackErr := channel.Nack(deliveryTag, false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("id", id),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := channel.Ack(deliveryTag, false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.String("id", id),
			slog.String("error", ackErr.Error()),
		)
	}
}

// shouldRequeue reports whether a processing error warrants broker
// redelivery. Only infrastructure errors wrapped RetryableError come
// back; everything else is settled in the database.
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		return false
	}
	if errors.Is(err, domain.ErrMaxAttemptsExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return false
	}
	if domain.IsValidation(err) {
		return false
	}
	return domain.IsRetryable(err)
}
