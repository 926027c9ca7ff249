// Package payments is the boundary to the payment and payout provider.
package payments

import (
	"context"
	"time"
)

// SessionRequest asks the provider for a hosted checkout for one job
type SessionRequest struct {
	AmountCents   int64
	JobID         string
	CustomerEmail string
}

// Session is a created checkout session
type Session struct {
	Ref string
	URL string
}

// TransferRequest moves money to a worker's payout account. Requests with the
// same IdempotencyKey create at most one transfer.
type TransferRequest struct {
	AmountCents    int64
	AccountRef     string
	IdempotencyKey string
	Metadata       map[string]string
}

// Provider creates charges, payout accounts and transfers. Errors worth
// retrying are tagged domain.KindUnavailable.
type Provider interface {
	CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error)
	// CreatePayoutAccount returns the same account for repeated calls with one ownerID
	CreatePayoutAccount(ctx context.Context, ownerID, ownerEmail string) (string, error)
	// CreatePayoutAccountLink returns a single-use URL where the owner completes account setup
	CreatePayoutAccountLink(ctx context.Context, accountRef, returnURL, refreshURL string) (string, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
}

// EventKind is the provider-independent type of an asynchronous event
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout_completed"
	EventPaymentConfirmed     EventKind = "payment_confirmed"
	EventInvoicePaid          EventKind = "invoice_paid"
	EventTransferSettled      EventKind = "transfer_settled"
	EventTransferFailed       EventKind = "transfer_failed"
	EventPayoutAccountUpdated EventKind = "payout_account_updated"
	EventUnknown              EventKind = "unknown"
)

// Metadata keys set on provider objects
const (
	MetadataJobID    = "job_id"
	MetadataPayoutID = "payout_id"
)

// Event is one provider notification, delivered at least once
type Event struct {
	ID           string            `json:"id"`
	Kind         EventKind         `json:"kind"`
	ProviderType string            `json:"provider_type"`
	ObjectRef    string            `json:"object_ref"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	// PaymentRef is the payment confirmation reference of a checkout
	PaymentRef string `json:"payment_ref,omitempty"`
	// SubscriptionRef is set on recurring invoices
	SubscriptionRef string `json:"subscription_ref,omitempty"`
	FailureMessage  string `json:"failure_message,omitempty"`
	// PayoutsEnabled is set on payout account updates
	PayoutsEnabled bool      `json:"payouts_enabled,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}
