package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// JobIDPlaceholder is replaced with the job id in redirect URLs
const JobIDPlaceholder = "{JOB_ID}"

// StripeConfig holds Stripe account settings
type StripeConfig struct {
	SecretKey   string
	Currency    string
	Country     string
	SuccessURL  string
	CancelURL   string
	ProductName string
}

// Stripe implements Provider against the Stripe API
type Stripe struct {
	api    *client.API
	config StripeConfig
	logger *slog.Logger
}

var _ Provider = (*Stripe)(nil)

// NewStripe creates a Stripe provider
func NewStripe(config StripeConfig, logger *slog.Logger) *Stripe {
	api := &client.API{}
	api.Init(config.SecretKey, nil)

	if config.ProductName == "" {
		config.ProductName = "Snow Shoveling Service"
	}

	return &Stripe{
		api:    api,
		config: config,
		logger: logger,
	}
}

// CreatePaymentSession opens a hosted checkout carrying the job id in metadata
func (s *Stripe) CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.config.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(s.config.ProductName),
						Description: stripe.String("One-time snow shoveling service"),
					},
					UnitAmount: stripe.Int64(req.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(strings.ReplaceAll(s.config.SuccessURL, JobIDPlaceholder, req.JobID)),
		CancelURL:  stripe.String(strings.ReplaceAll(s.config.CancelURL, JobIDPlaceholder, req.JobID)),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataJobID, req.JobID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Debug("Checkout session created",
		slog.String("job_id", req.JobID),
		slog.String("session_ref", sess.ID),
	)

	return &Session{Ref: sess.ID, URL: sess.URL}, nil
}

// CreatePayoutAccount creates an express connected account for a worker. The
// owner id is the idempotency key, so concurrent first onboardings of one
// worker get the same account.
func (s *Stripe) CreatePayoutAccount(ctx context.Context, ownerID, ownerEmail string) (string, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(s.config.Country),
		Email:   stripe.String(ownerEmail),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("payout-account-" + ownerID)

	acct, err := s.api.Accounts.New(params)
	if err != nil {
		return "", classifyStripe("create payout account", err)
	}
	return acct.ID, nil
}

// CreatePayoutAccountLink opens an onboarding link for a connected account
func (s *Stripe) CreatePayoutAccountLink(ctx context.Context, accountRef, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountRef),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	link, err := s.api.AccountLinks.New(params)
	if err != nil {
		return "", classifyStripe("create payout account link", err)
	}
	return link.URL, nil
}

// CreateTransfer moves funds to a connected account
func (s *Stripe) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(s.config.Currency),
		Destination: stripe.String(req.AccountRef),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	tr, err := s.api.Transfers.New(params)
	if err != nil {
		return "", classifyStripe("create transfer", err)
	}
	return tr.ID, nil
}

// classifyStripe marks errors a retry can fix as Unavailable: network
// failures, rate limits, idempotent request collisions and server errors.
// Anything else is a rejection of the request itself.
func classifyStripe(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return domain.Wrap(domain.KindUnavailable, op, err)
	}
	switch code := stripeErr.HTTPStatusCode; {
	case code == http.StatusTooManyRequests, code == http.StatusConflict, code >= http.StatusInternalServerError:
		return domain.Wrap(domain.KindUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
