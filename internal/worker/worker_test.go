package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/metrics"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcker struct {
	mu      sync.Mutex
	settled map[uint64]string
}

func newFakeAcker() *fakeAcker {
	return &fakeAcker{settled: make(map[uint64]string)}
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = "ack"
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.settled[tag] = "requeue"
	} else {
		a.settled[tag] = "nack"
	}
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcker) get(tag uint64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settled[tag]
}

type fakeSource struct {
	ch  chan amqp.Delivery
	err error
}

func (s *fakeSource) Consume(string) (<-chan amqp.Delivery, error) {
	return s.ch, s.err
}

type fakeReconciler struct {
	mu   sync.Mutex
	seen []payments.Event
	errs map[string]error
}

func (r *fakeReconciler) Handle(_ context.Context, ev payments.Event) (reconcile.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
	if err := r.errs[ev.ID]; err != nil {
		return "", err
	}
	return reconcile.OutcomeApplied, nil
}

type fakeDispatcher struct {
	runs atomic.Int32
}

func (d *fakeDispatcher) Dispatch(context.Context) (reconcile.DispatchResult, error) {
	d.runs.Add(1)
	return reconcile.DispatchResult{Dispatched: 1}, nil
}

func delivery(t *testing.T, acker amqp.Acknowledger, tag uint64, ev payments.Event) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, MessageId: ev.ID, Body: body}
}

func startWorker(t *testing.T, cfg *Config) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(cfg)

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return cancel, done
}

func TestWorker_AckPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	acker := newFakeAcker()
	source := &fakeSource{ch: make(chan amqp.Delivery, 8)}
	rec := &fakeReconciler{errs: map[string]error{
		"evt_unavailable": domain.E(domain.KindUnavailable, "reconcile", "database busy"),
		"evt_internal":    errors.New("unexpected"),
	}}

	startWorker(t, &Config{
		Logger:      logger,
		Source:      source,
		Reconciler:  rec,
		Metrics:     metrics.NewCollector(prometheus.NewRegistry()),
		Concurrency: 2,
	})

	source.ch <- delivery(t, acker, 1, payments.Event{ID: "evt_ok", Kind: payments.EventCheckoutCompleted})
	source.ch <- delivery(t, acker, 2, payments.Event{ID: "evt_unavailable", Kind: payments.EventTransferSettled})
	source.ch <- delivery(t, acker, 3, payments.Event{ID: "evt_internal", Kind: payments.EventTransferFailed})
	source.ch <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 4, Body: []byte("{not json")}

	want := map[uint64]string{1: "ack", 2: "requeue", 3: "nack", 4: "nack"}
	require.Eventually(t, func() bool {
		for tag, state := range want {
			if acker.get(tag) != state {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.seen, 3)
}

func TestWorker_MessageIDFallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	acker := newFakeAcker()
	source := &fakeSource{ch: make(chan amqp.Delivery, 1)}
	rec := &fakeReconciler{}

	startWorker(t, &Config{Logger: logger, Source: source, Reconciler: rec})

	body, err := json.Marshal(map[string]any{"kind": "checkout_completed"})
	require.NoError(t, err)
	source.ch <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 9, MessageId: "evt_from_header", Body: body}

	require.Eventually(t, func() bool { return acker.get(9) == "ack" }, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.seen, 1)
	assert.Equal(t, "evt_from_header", rec.seen[0].ID)
}

func TestWorker_PayoutLoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := &fakeDispatcher{}

	startWorker(t, &Config{
		Logger:         logger,
		Source:         &fakeSource{ch: make(chan amqp.Delivery)},
		Reconciler:     &fakeReconciler{},
		Payouts:        dispatcher,
		PayoutInterval: 10 * time.Millisecond,
	})

	require.Eventually(t, func() bool { return dispatcher.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_ConsumeError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(&Config{
		Logger:     logger,
		Source:     &fakeSource{err: errors.New("channel closed")},
		Reconciler: &fakeReconciler{},
	})

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start consuming")
	w.Stop()
}

func TestWorker_StopsWhenDeliveriesClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := &fakeSource{ch: make(chan amqp.Delivery)}

	_, done := startWorker(t, &Config{Logger: logger, Source: source, Reconciler: &fakeReconciler{}})
	close(source.ch)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return after the delivery channel closed")
	}
}

func TestShouldRequeue(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRequeue(ctx, domain.E(domain.KindUnavailable, "op", "busy")))
	assert.False(t, shouldRequeue(ctx, domain.E(domain.KindInvalid, "op", "bad")))
	assert.False(t, shouldRequeue(ctx, errors.New("plain")))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.True(t, shouldRequeue(canceled, errors.New("plain")))
}
