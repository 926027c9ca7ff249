package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransfers struct {
	fail   map[string]error
	reqs   []payments.TransferRequest
	onSend func(payoutID string)
}

func (f *fakeTransfers) CreateTransfer(ctx context.Context, req payments.TransferRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.onSend != nil {
		f.onSend(req.Metadata[payments.MetadataPayoutID])
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.fail[req.Metadata[payments.MetadataPayoutID]]; err != nil {
		return "", err
	}
	return "tr_" + req.Metadata[payments.MetadataPayoutID], nil
}

func seedDispatch(store *memory.Store) {
	store.PutWorker(domain.WorkerProfile{ID: "ready", Active: true, MaxHouses: 1, PayoutAccountRef: strPtr("acct_ready"), PayoutAccountReady: true})
	store.PutWorker(domain.WorkerProfile{ID: "unready", Active: true, MaxHouses: 1, PayoutAccountRef: strPtr("acct_unready")})

	store.PutPayout(domain.Payout{ID: "p-1", WorkerID: "ready", AmountCents: 3500, Status: domain.PayoutStatusPending, CreatedAt: t0})
	store.PutPayout(domain.Payout{ID: "p-2", WorkerID: "ready", AmountCents: 3000, Status: domain.PayoutStatusPending, CreatedAt: t0.Add(1)})
	store.PutPayout(domain.Payout{ID: "p-3", WorkerID: "unready", AmountCents: 3500, Status: domain.PayoutStatusPending, CreatedAt: t0})
	store.PutPayout(domain.Payout{ID: "p-4", WorkerID: "ready", AmountCents: 3500, Status: domain.PayoutStatusCompleted, CreatedAt: t0})
}

func payoutByID(store *memory.Store, id string) domain.Payout {
	for _, p := range store.Payouts() {
		if p.ID == id {
			return p
		}
	}
	return domain.Payout{}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedDispatch(store)
	transfers := &fakeTransfers{fail: map[string]error{"p-2": errors.New("insufficient funds")}}

	d := NewDispatcher(store, transfers, discardLog, 10)
	result, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Dispatched: 1, Failed: 1}, result)

	require.Len(t, transfers.reqs, 2)
	assert.Equal(t, "acct_ready", transfers.reqs[0].AccountRef)
	assert.Equal(t, int64(3500), transfers.reqs[0].AmountCents)
	assert.Equal(t, "payout-p-1", transfers.reqs[0].IdempotencyKey)

	sent := payoutByID(store, "p-1")
	assert.Equal(t, domain.PayoutStatusProcessing, sent.Status)
	assert.Equal(t, "tr_p-1", *sent.TransferRef)

	failed := payoutByID(store, "p-2")
	assert.Equal(t, domain.PayoutStatusFailed, failed.Status)
	assert.Equal(t, "insufficient funds", *failed.FailureReason)

	assert.Equal(t, domain.PayoutStatusPending, payoutByID(store, "p-3").Status)

	t.Run("second run sends nothing", func(t *testing.T) {
		result, err := d.Dispatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, DispatchResult{}, result)
		assert.Len(t, transfers.reqs, 2)
	})
}

func TestDispatch_ThenSettle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedDispatch(store)

	_, err := NewDispatcher(store, &fakeTransfers{}, discardLog, 0).Dispatch(ctx)
	require.NoError(t, err)

	r := NewReconciler(store, discardLog, nil)
	_, err = r.Handle(ctx, payments.Event{
		ID:        "evt_tr",
		Kind:      payments.EventTransferSettled,
		ObjectRef: "tr_p-1",
		Metadata:  map[string]string{payments.MetadataPayoutID: "p-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, payoutByID(store, "p-1").Status)
}

func TestDispatch_InterruptedTransferIsRetried(t *testing.T) {
	store := memory.New()
	seedDispatch(store)

	ctx, cancel := context.WithCancel(context.Background())
	transfers := &fakeTransfers{onSend: func(payoutID string) {
		if payoutID == "p-1" {
			cancel()
		}
	}}
	d := NewDispatcher(store, transfers, discardLog, 10)
	d.clock = func() time.Time { return t0 }

	_, err := d.Dispatch(ctx)
	require.ErrorIs(t, err, context.Canceled)

	stuck := payoutByID(store, "p-1")
	assert.Equal(t, domain.PayoutStatusProcessing, stuck.Status)
	assert.Nil(t, stuck.TransferRef)
	assert.Nil(t, stuck.FailureReason)
	assert.Equal(t, domain.PayoutStatusPending, payoutByID(store, "p-2").Status)

	transfers.onSend = nil
	d.clock = func() time.Time { return t0.Add(time.Minute) }
	result, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Dispatched: 1}, result)
	assert.Nil(t, payoutByID(store, "p-1").TransferRef, "not retried before the retry delay")

	d.clock = func() time.Time { return t0.Add(DefaultRetryAfter + time.Minute) }
	result, err = d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Dispatched: 1}, result)

	sent := payoutByID(store, "p-1")
	assert.Equal(t, domain.PayoutStatusProcessing, sent.Status)
	assert.Equal(t, "tr_p-1", *sent.TransferRef)

	var keys []string
	for _, req := range transfers.reqs {
		if req.Metadata[payments.MetadataPayoutID] == "p-1" {
			keys = append(keys, req.IdempotencyKey)
		}
	}
	assert.Equal(t, []string{"payout-p-1", "payout-p-1"}, keys)
}

func TestDispatch_RetryableErrorKeepsPayoutOpen(t *testing.T) {
	store := memory.New()
	seedDispatch(store)
	transfers := &fakeTransfers{fail: map[string]error{
		"p-2": domain.Wrap(domain.KindUnavailable, "create transfer", errors.New("rate limited")),
	}}

	d := NewDispatcher(store, transfers, discardLog, 10)
	d.clock = func() time.Time { return t0 }
	result, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Dispatched: 1, Skipped: 1}, result)

	deferred := payoutByID(store, "p-2")
	assert.Equal(t, domain.PayoutStatusProcessing, deferred.Status)
	assert.Nil(t, deferred.FailureReason)

	transfers.fail = nil
	d.clock = func() time.Time { return t0.Add(DefaultRetryAfter + time.Second) }
	result, err = d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Dispatched: 1}, result)
	assert.Equal(t, "tr_p-2", *payoutByID(store, "p-2").TransferRef)
}
