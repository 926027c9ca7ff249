// Package reconcile applies asynchronous payment provider events to job and
// payout state. Providers deliver at least once, so every handler is
// idempotent and runs its dedup check and mutation in one transaction.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/pricing"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/google/uuid"
)

// OccurrenceHour is the hour of day, UTC, recurring occurrences are scheduled at
const OccurrenceHour = 8

// Outcome describes what handling an event did
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeIgnored   Outcome = "ignored"
)

// Reconciler applies provider events
type Reconciler struct {
	store  storage.Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewReconciler creates a new Reconciler. A nil clock defaults to time.Now.
func NewReconciler(store storage.Store, logger *slog.Logger, clock func() time.Time) *Reconciler {
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		store:  store,
		logger: logger,
		clock:  clock,
	}
}

// Handle applies one event. It returns an error only when the failure is
// transient and the event should be redelivered; anything else is logged and
// dropped so an unprocessable event never loops.
func (r *Reconciler) Handle(ctx context.Context, ev payments.Event) (Outcome, error) {
	log := r.logger.With(
		slog.String("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
	)

	if ev.ID == "" {
		log.Warn("Dropping event without id")
		return OutcomeDropped, nil
	}

	apply, ok := r.handlers()[ev.Kind]
	if !ok {
		log.Info("Ignoring unrecognized event", slog.String("provider_type", ev.ProviderType))
		return OutcomeIgnored, nil
	}

	now := r.clock().UTC()
	outcome := OutcomeApplied

	err := r.store.WithTx(ctx, func(repo storage.Repository) error {
		first, err := repo.MarkEventProcessed(ctx, ev.ID, string(ev.Kind), now)
		if err != nil {
			return err
		}
		if !first {
			outcome = OutcomeDuplicate
			return nil
		}
		outcome, err = apply(ctx, repo, ev, now, log)
		return err
	})
	if err != nil {
		if domain.KindOf(err).Retryable() {
			log.Warn("Transient failure reconciling event", slog.String("error", err.Error()))
			return "", err
		}
		log.Error("Dropping unprocessable event", slog.String("error", err.Error()))
		return OutcomeDropped, nil
	}

	log.Debug("Event reconciled", slog.String("outcome", string(outcome)))
	return outcome, nil
}

type handlerFunc func(ctx context.Context, repo storage.Repository, ev payments.Event, now time.Time, log *slog.Logger) (Outcome, error)

func (r *Reconciler) handlers() map[payments.EventKind]handlerFunc {
	return map[payments.EventKind]handlerFunc{
		payments.EventCheckoutCompleted:    r.checkoutCompleted,
		payments.EventPaymentConfirmed:     r.paymentConfirmed,
		payments.EventInvoicePaid:          r.invoicePaid,
		payments.EventTransferSettled:      r.transferSettled,
		payments.EventTransferFailed:       r.transferFailed,
		payments.EventPayoutAccountUpdated: r.payoutAccountUpdated,
	}
}

// checkoutCompleted records the payment reference on the job the session was
// created for. Matching on the session reference keeps a stale session from
// overwriting the current one.
func (r *Reconciler) checkoutCompleted(ctx context.Context, repo storage.Repository, ev payments.Event, now time.Time, log *slog.Logger) (Outcome, error) {
	jobID := ev.Metadata[payments.MetadataJobID]
	if jobID == "" {
		log.Warn("Checkout completed without job id metadata", slog.String("session_ref", ev.ObjectRef))
		return OutcomeDropped, nil
	}
	if ev.PaymentRef == "" {
		log.Warn("Checkout completed without payment reference", slog.String("job_id", jobID))
		return OutcomeDropped, nil
	}

	changed, err := repo.ConfirmCheckout(ctx, jobID, ev.ObjectRef, ev.PaymentRef, now)
	if err != nil {
		return "", err
	}
	if !changed {
		log.Warn("No job matches checkout session",
			slog.String("job_id", jobID),
			slog.String("session_ref", ev.ObjectRef),
		)
		return OutcomeDropped, nil
	}

	log.Info("Payment confirmed for job",
		slog.String("job_id", jobID),
		slog.String("payment_ref", ev.PaymentRef),
	)
	return OutcomeApplied, nil
}

func (r *Reconciler) paymentConfirmed(ctx context.Context, repo storage.Repository, ev payments.Event, _ time.Time, log *slog.Logger) (Outcome, error) {
	job, err := repo.FindJobByPaymentRef(ctx, ev.PaymentRef)
	if domain.KindOf(err) == domain.KindNotFound {
		log.Debug("Payment confirmed before checkout completed", slog.String("payment_ref", ev.PaymentRef))
		return OutcomeApplied, nil
	}
	if err != nil {
		return "", err
	}
	log.Info("Payment confirmed", slog.String("job_id", job.ID), slog.String("payment_ref", ev.PaymentRef))
	return OutcomeApplied, nil
}

// invoicePaid creates one open occurrence per invoice of a known subscription
func (r *Reconciler) invoicePaid(ctx context.Context, repo storage.Repository, ev payments.Event, now time.Time, log *slog.Logger) (Outcome, error) {
	if ev.SubscriptionRef == "" {
		log.Debug("Invoice paid without subscription", slog.String("invoice_ref", ev.ObjectRef))
		return OutcomeDropped, nil
	}

	sub, err := repo.GetSubscriptionByRef(ctx, ev.SubscriptionRef)
	if domain.KindOf(err) == domain.KindNotFound {
		log.Warn("Subscription not found for invoice", slog.String("subscription_ref", ev.SubscriptionRef))
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}

	settings, err := repo.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	quote := pricing.Occurrence(*sub, *settings)

	job := &domain.Job{
		ID:               uuid.New().String(),
		HomeownerID:      sub.HomeownerID,
		AddressID:        sub.AddressID,
		ScheduledAt:      OccurrenceTime(now),
		Type:             domain.JobTypeSubscriptionOccurrence,
		Status:           domain.JobStatusOpen,
		PriceCents:       quote.PriceCents,
		PlatformFeeCents: quote.PlatformFeeCents,
		PayoutCents:      quote.PayoutCents,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ev.ObjectRef != "" {
		ref := ev.ObjectRef
		job.InvoiceRef = &ref
	}

	created, err := repo.InsertOccurrence(ctx, job)
	if err != nil {
		return "", err
	}
	if !created {
		log.Info("Occurrence already exists for invoice", slog.String("invoice_ref", ev.ObjectRef))
		return OutcomeDuplicate, nil
	}

	log.Info("Subscription occurrence created",
		slog.String("job_id", job.ID),
		slog.String("subscription_ref", sub.ExternalRef),
	)
	return OutcomeApplied, nil
}

// OccurrenceTime is the scheduled time of an occurrence billed at now: the
// same day at OccurrenceHour
func OccurrenceTime(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, OccurrenceHour, 0, 0, 0, time.UTC)
}

func (r *Reconciler) transferSettled(ctx context.Context, repo storage.Repository, ev payments.Event, now time.Time, log *slog.Logger) (Outcome, error) {
	payoutID := ev.Metadata[payments.MetadataPayoutID]
	if payoutID == "" {
		log.Debug("Transfer without payout id metadata", slog.String("transfer_ref", ev.ObjectRef))
		return OutcomeDropped, nil
	}

	payout, err := repo.GetPayout(ctx, payoutID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			log.Warn("Payout not found for transfer", slog.String("payout_id", payoutID))
			return OutcomeDropped, nil
		}
		return "", err
	}

	changed, err := repo.SettlePayout(ctx, payoutID, ev.ObjectRef, now)
	if err != nil {
		return "", err
	}
	if !changed {
		return finishedPayout(payout, domain.PayoutStatusCompleted, log), nil
	}

	log.Info("Payout completed", slog.String("payout_id", payoutID), slog.String("transfer_ref", ev.ObjectRef))
	return OutcomeApplied, nil
}

func (r *Reconciler) transferFailed(ctx context.Context, repo storage.Repository, ev payments.Event, now time.Time, log *slog.Logger) (Outcome, error) {
	payoutID := ev.Metadata[payments.MetadataPayoutID]
	if payoutID == "" {
		log.Debug("Transfer without payout id metadata", slog.String("transfer_ref", ev.ObjectRef))
		return OutcomeDropped, nil
	}

	payout, err := repo.GetPayout(ctx, payoutID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			log.Warn("Payout not found for transfer", slog.String("payout_id", payoutID))
			return OutcomeDropped, nil
		}
		return "", err
	}

	reason := ev.FailureMessage
	if reason == "" {
		reason = domain.DefaultFailureReason
	}

	changed, err := repo.FailPayout(ctx, payoutID, reason, now)
	if err != nil {
		return "", err
	}
	if !changed {
		return finishedPayout(payout, domain.PayoutStatusFailed, log), nil
	}

	log.Warn("Payout failed", slog.String("payout_id", payoutID), slog.String("reason", reason))
	return OutcomeApplied, nil
}

// finishedPayout classifies a transfer event for a payout that has already
// completed or failed. Both are final; an event for the other end state is
// logged and left alone.
func finishedPayout(payout *domain.Payout, want domain.PayoutStatus, log *slog.Logger) Outcome {
	if payout.Status == want {
		return OutcomeDuplicate
	}
	log.Warn("Transfer event conflicts with finished payout",
		slog.String("payout_id", payout.ID),
		slog.String("status", string(payout.Status)),
		slog.String("event_status", string(want)),
	)
	return OutcomeIgnored
}

func (r *Reconciler) payoutAccountUpdated(ctx context.Context, repo storage.Repository, ev payments.Event, now time.Time, log *slog.Logger) (Outcome, error) {
	matched, err := repo.SetPayoutAccountReady(ctx, ev.ObjectRef, ev.PayoutsEnabled, now)
	if err != nil {
		return "", err
	}
	if !matched {
		log.Debug("No worker for payout account", slog.String("account_ref", ev.ObjectRef))
		return OutcomeDropped, nil
	}

	log.Info("Payout account updated",
		slog.String("account_ref", ev.ObjectRef),
		slog.Bool("ready", ev.PayoutsEnabled),
	)
	return OutcomeApplied, nil
}
