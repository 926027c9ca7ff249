package worker

import (
	"context"
	"log/slog"
	"time"
)

// processEvent runs the reconciler under the per-event timeout. A non-nil
// error means the event should be redelivered.
func (w *Worker) processEvent(ctx context.Context, msg *message) error {
	eventCtx, cancel := context.WithTimeout(ctx, w.eventTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := w.reconciler.Handle(eventCtx, msg.event)
	if err != nil {
		w.recordEvent(msg.event.Kind, "retry")
		return err
	}

	w.recordEvent(msg.event.Kind, string(outcome))
	w.logger.Info("Event processed",
		slog.String("event_id", msg.event.ID),
		slog.String("kind", string(msg.event.Kind)),
		slog.String("outcome", string(outcome)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
