package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/snow-market/internal/payments"
	amqp "github.com/rabbitmq/amqp091-go"
)

// startMessageDispatcher decodes deliveries and hands them to the pool. It
// returns when ctx is canceled, Stop is called or the delivery channel closes.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := decodeDelivery(delivery)
			if err != nil {
				w.logger.Error("Failed to parse event message",
					slog.String("error", err.Error()),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
					slog.Int("body_size", len(delivery.Body)),
				)
				// malformed bodies go to the dead letter exchange
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				w.recordEvent(payments.EventUnknown, "malformed")
				continue
			}

			select {
			case w.eventsChan <- msg:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("event_id", msg.event.ID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching event")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			case <-w.stopChan:
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// decodeDelivery parses the JSON event body. A missing id falls back to the
// AMQP message id, which the publisher sets to the event id.
func decodeDelivery(d amqp.Delivery) (*message, error) {
	var ev payments.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return nil, err
	}
	if ev.ID == "" {
		ev.ID = d.MessageId
	}
	return &message{event: ev, delivery: d}, nil
}
