package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/payments"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.eventsChan:
			w.handleMessage(ctx, workerName, msg)
		}
	}
}

// handleMessage reconciles one event and settles its delivery
func (w *Worker) handleMessage(ctx context.Context, workerName string, msg *message) {
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("event_id", msg.event.ID),
		slog.String("kind", string(msg.event.Kind)),
	)

	err := w.processEvent(ctx, msg)
	if err != nil {
		requeue := shouldRequeue(ctx, err)
		if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
			log.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
			return
		}
		log.Warn("Message NACKed",
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		return
	}

	if ackErr := msg.delivery.Ack(false); ackErr != nil {
		log.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
	}
}

// shouldRequeue redelivers transient failures, including events cut short by shutdown
func shouldRequeue(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return domain.KindOf(err).Retryable()
}

// payoutLoop runs the payout dispatcher on a ticker
func (w *Worker) payoutLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.payoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.dispatchPayouts(ctx)
		}
	}
}

func (w *Worker) dispatchPayouts(ctx context.Context) {
	result, err := w.payouts.Dispatch(ctx)
	if w.metrics != nil {
		w.metrics.RecordPayouts(result.Dispatched, result.Failed)
	}
	if err != nil {
		w.logger.Error("Payout dispatch failed",
			slog.String("error", err.Error()),
			slog.Int("dispatched", result.Dispatched),
		)
	}
}

func (w *Worker) recordEvent(kind payments.EventKind, outcome string) {
	if w.metrics != nil {
		w.metrics.RecordEvent(string(kind), outcome)
	}
}
