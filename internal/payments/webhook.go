package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ParseWebhook verifies the signature of a raw provider notification and
// translates it into an Event
func ParseWebhook(payload []byte, signature, secret string, now time.Time) (*Event, error) {
	if secret == "" {
		return nil, domain.E(domain.KindUnavailable, "parse webhook", "webhook secret not configured")
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalid, "verify webhook signature", err)
	}

	return Translate(ev, now)
}

// object is the subset of provider object fields the platform reads
type object struct {
	ID             string            `json:"id"`
	Metadata       map[string]string `json:"metadata"`
	PaymentIntent  expandable        `json:"payment_intent"`
	Subscription   expandable        `json:"subscription"`
	FailureMessage string            `json:"failure_message"`
	PayoutsEnabled bool              `json:"payouts_enabled"`
}

// expandable decodes a reference that is either an id string or an expanded
// object with an id field
type expandable string

func (e *expandable) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandable(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

// Translate maps a provider event onto the platform's event kinds.
// Unrecognized types become EventUnknown.
func Translate(ev stripe.Event, now time.Time) (*Event, error) {
	out := &Event{
		ID:           ev.ID,
		Kind:         EventUnknown,
		ProviderType: string(ev.Type),
		ReceivedAt:   now.UTC(),
	}
	if ev.ID == "" {
		return nil, domain.E(domain.KindInvalid, "translate event", "event id is required")
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}

	var obj object
	if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
		return nil, domain.Wrap(domain.KindInvalid, "translate event", fmt.Errorf("decode %s object: %w", ev.Type, err))
	}
	out.ObjectRef = obj.ID
	out.Metadata = obj.Metadata

	switch ev.Type {
	case "checkout.session.completed":
		out.Kind = EventCheckoutCompleted
		out.PaymentRef = string(obj.PaymentIntent)
	case "payment_intent.succeeded":
		out.Kind = EventPaymentConfirmed
		out.PaymentRef = obj.ID
	case "invoice.payment_succeeded":
		out.Kind = EventInvoicePaid
		out.SubscriptionRef = string(obj.Subscription)
	case "transfer.created", "transfer.paid":
		out.Kind = EventTransferSettled
	case "transfer.reversed", "transfer.failed":
		out.Kind = EventTransferFailed
		out.FailureMessage = obj.FailureMessage
	case "account.updated":
		out.Kind = EventPayoutAccountUpdated
		out.PayoutsEnabled = obj.PayoutsEnabled
	}

	return out, nil
}
