package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/gin-gonic/gin"
)

const (
	// SignatureHeader carries the provider's webhook signature
	SignatureHeader = "Stripe-Signature"
	maxWebhookBytes = 65536
)

// Receive handles POST /api/v1/webhooks/payments
// Verifies the signature and publishes the event; reconciliation happens in the worker service
func (h *WebhookHandler) Receive(c *gin.Context) {
	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		h.metrics.RecordWebhook("rejected")
		badRequest(c, "Missing stripe-signature header")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.metrics.RecordWebhook("rejected")
		badRequest(c, "Invalid request body")
		return
	}

	event, err := payments.ParseWebhook(payload, signature, h.secret, time.Now())
	if err != nil {
		h.metrics.RecordWebhook("rejected")
		h.logger.Warn("Webhook rejected", slog.String("error", err.Error()))
		respondError(c, h.logger, err, "Webhook verification failed")
		return
	}

	if err := h.events.PublishJSON(c.Request.Context(), event.ID, event); err != nil {
		h.metrics.RecordWebhook("publish_failed")
		h.logger.Error("Failed to publish webhook event",
			slog.String("event_id", event.ID),
			slog.String("provider_type", event.ProviderType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Webhook handler failed",
		})
		return
	}

	h.metrics.RecordWebhook("published")
	h.logger.Info("Webhook event published",
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
