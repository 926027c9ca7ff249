package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/storage"
)

const (
	// DefaultBatchSize bounds one dispatch run
	DefaultBatchSize = 50
	// DefaultRetryAfter is how long a processing payout without a transfer ref
	// waits before a later run sends it again
	DefaultRetryAfter = 10 * time.Minute

	recordTimeout = 5 * time.Second
)

// Transferrer sends money to a payout account
type Transferrer interface {
	CreateTransfer(ctx context.Context, req payments.TransferRequest) (string, error)
}

// DispatchResult counts what one run did
type DispatchResult struct {
	Dispatched int
	Failed     int
	Skipped    int
}

// Dispatcher turns pending payouts into provider transfers
type Dispatcher struct {
	store      storage.Store
	transfers  Transferrer
	logger     *slog.Logger
	clock      func() time.Time
	batchSize  int
	retryAfter time.Duration
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(store storage.Store, transfers Transferrer, logger *slog.Logger, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		store:      store,
		transfers:  transfers,
		logger:     logger,
		clock:      time.Now,
		batchSize:  batchSize,
		retryAfter: DefaultRetryAfter,
	}
}

// TransferKey is the provider idempotency key of a payout's transfer
func TransferKey(payoutID string) string {
	return "payout-" + payoutID
}

// Dispatch sends one batch of pending payouts whose worker has a ready payout
// account. Each payout is moved to processing before the transfer is created,
// so concurrent runs never transfer the same payout twice. A payout left in
// processing without a transfer ref, by a crash or a retryable provider
// error, is sent again once it is older than the retry delay; the transfer
// idempotency key makes the provider return the original transfer if the
// first attempt did go through.
func (d *Dispatcher) Dispatch(ctx context.Context) (DispatchResult, error) {
	var (
		result  DispatchResult
		targets []domain.PayoutTarget
	)

	staleBefore := d.clock().UTC().Add(-d.retryAfter)
	err := d.store.View(ctx, func(r storage.Repository) error {
		var err error
		targets, err = r.ListDispatchablePayouts(ctx, d.batchSize, staleBefore)
		return err
	})
	if err != nil {
		return result, err
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sent, err := d.dispatchOne(ctx, target, staleBefore)
		if err != nil {
			return result, err
		}
		switch sent {
		case OutcomeApplied:
			result.Dispatched++
		case OutcomeDropped:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	if len(targets) > 0 {
		d.logger.Info("Payout dispatch finished",
			slog.Int("dispatched", result.Dispatched),
			slog.Int("failed", result.Failed),
			slog.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, target domain.PayoutTarget, staleBefore time.Time) (Outcome, error) {
	log := d.logger.With(slog.String("payout_id", target.ID), slog.String("worker_id", target.WorkerID))

	var claimed bool
	err := d.store.WithTx(ctx, func(r storage.Repository) error {
		var err error
		claimed, err = r.MarkPayoutProcessing(ctx, target.ID, staleBefore, d.clock().UTC())
		return err
	})
	if err != nil {
		return "", err
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}
	if target.Status == domain.PayoutStatusProcessing {
		log.Warn("Retrying unconfirmed transfer")
	}

	transferRef, err := d.transfers.CreateTransfer(ctx, payments.TransferRequest{
		AmountCents:    target.AmountCents,
		AccountRef:     target.PayoutAccountRef,
		IdempotencyKey: TransferKey(target.ID),
		Metadata:       map[string]string{payments.MetadataPayoutID: target.ID},
	})

	// the transfer outcome is recorded even when ctx is done
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err != nil {
		if ctx.Err() != nil || domain.KindOf(err) == domain.KindUnavailable {
			log.Warn("Transfer deferred", slog.String("error", err.Error()))
			return OutcomeIgnored, ctx.Err()
		}
		log.Error("Transfer failed", slog.String("error", err.Error()))
		reason := err.Error()
		return OutcomeDropped, d.store.WithTx(recordCtx, func(r storage.Repository) error {
			_, err := r.FailPayout(recordCtx, target.ID, reason, d.clock().UTC())
			return err
		})
	}

	err = d.store.WithTx(recordCtx, func(r storage.Repository) error {
		return r.SetPayoutTransfer(recordCtx, target.ID, transferRef, d.clock().UTC())
	})
	if err != nil {
		return "", err
	}

	log.Info("Transfer created",
		slog.String("transfer_ref", transferRef),
		slog.Int64("amount_cents", target.AmountCents),
	)
	return OutcomeApplied, nil
}
