package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/snow-market/internal/metrics"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/reconcile"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultConcurrency  = 1
	defaultEventTimeout = 30 * time.Second
)

// Source delivers queued provider events
type Source interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// EventHandler applies one provider event
type EventHandler interface {
	Handle(ctx context.Context, ev payments.Event) (reconcile.Outcome, error)
}

// PayoutDispatcher sends pending payouts
type PayoutDispatcher interface {
	Dispatch(ctx context.Context) (reconcile.DispatchResult, error)
}

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Source     Source
	Reconciler EventHandler
	// Payouts is optional; without it the worker only reconciles events
	Payouts        PayoutDispatcher
	Metrics        *metrics.Collector
	WorkerID       string
	Concurrency    int
	EventTimeout   time.Duration
	PayoutInterval time.Duration
}

// message is one decoded delivery waiting for the pool
type message struct {
	event    payments.Event
	delivery amqp.Delivery
}

// Worker consumes provider events and runs the payout dispatcher
type Worker struct {
	logger         *slog.Logger
	source         Source
	reconciler     EventHandler
	payouts        PayoutDispatcher
	metrics        *metrics.Collector
	workerID       string
	concurrency    int
	eventTimeout   time.Duration
	payoutInterval time.Duration

	eventsChan chan *message
	wg         sync.WaitGroup
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "reconciler"
	}

	return &Worker{
		logger:         cfg.Logger,
		source:         cfg.Source,
		reconciler:     cfg.Reconciler,
		payouts:        cfg.Payouts,
		metrics:        cfg.Metrics,
		workerID:       workerID,
		concurrency:    concurrency,
		eventTimeout:   eventTimeout,
		payoutInterval: cfg.PayoutInterval,
		eventsChan:     make(chan *message, concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start consumes events until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("event_timeout", w.eventTimeout),
		slog.Duration("payout_interval", w.payoutInterval),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if w.payouts != nil && w.payoutInterval > 0 {
		w.wg.Add(1)
		go w.payoutLoop(ctx)
	}

	w.startMessageDispatcher(ctx, deliveries)
	return nil
}

// Stop signals the pool to exit and waits for in-flight events
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
	)
	return deliveries, nil
}
