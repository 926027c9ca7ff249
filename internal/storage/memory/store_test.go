package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestStore_WithTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(r storage.Repository) error {
		require.NoError(t, r.InsertJob(ctx, &domain.Job{ID: "job-1", Status: domain.JobStatusOpen}))
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Empty(t, s.Jobs())

	err = s.WithTx(ctx, func(r storage.Repository) error {
		return r.InsertJob(ctx, &domain.Job{ID: "job-1", Status: domain.JobStatusOpen})
	})
	require.NoError(t, err)
	assert.Len(t, s.Jobs(), 1)
}

func TestStore_ViewDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.View(ctx, func(r storage.Repository) error {
		return r.InsertJob(ctx, &domain.Job{ID: "job-1"})
	})
	require.NoError(t, err)
	assert.Empty(t, s.Jobs())
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WithTx(ctx, func(storage.Repository) error { return nil })
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
}

func TestRepo_Uniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	t.Run("one occurrence per invoice", func(t *testing.T) {
		err := s.WithTx(ctx, func(r storage.Repository) error {
			ok, err := r.InsertOccurrence(ctx, &domain.Job{ID: "occ-1", InvoiceRef: strPtr("in_1")})
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = r.InsertOccurrence(ctx, &domain.Job{ID: "occ-2", InvoiceRef: strPtr("in_1")})
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("one payout per job", func(t *testing.T) {
		err := s.WithTx(ctx, func(r storage.Repository) error {
			require.NoError(t, r.InsertPayout(ctx, &domain.Payout{ID: "p-1", JobID: strPtr("job-1")}))
			return r.InsertPayout(ctx, &domain.Payout{ID: "p-2", JobID: strPtr("job-1")})
		})
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	})

	t.Run("event ids", func(t *testing.T) {
		err := s.WithTx(ctx, func(r storage.Repository) error {
			first, err := r.MarkEventProcessed(ctx, "evt_1", "checkout_completed", t0)
			require.NoError(t, err)
			second, err := r.MarkEventProcessed(ctx, "evt_1", "checkout_completed", t0)
			require.NoError(t, err)
			assert.True(t, first)
			assert.False(t, second)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestRepo_CountActiveHousesByAddress(t *testing.T) {
	s := New()
	ctx := context.Background()
	w := strPtr("w-1")

	s.PutJob(domain.Job{ID: "a", AddressID: "addr-1", WorkerID: w, Status: domain.JobStatusClaimed})
	s.PutJob(domain.Job{ID: "b", AddressID: "addr-1", WorkerID: w, Status: domain.JobStatusInProgress})
	s.PutJob(domain.Job{ID: "c", AddressID: "addr-2", WorkerID: w, Status: domain.JobStatusClaimed})
	s.PutJob(domain.Job{ID: "d", AddressID: "addr-3", WorkerID: w, Status: domain.JobStatusCompleted})
	s.PutJob(domain.Job{ID: "e", AddressID: "addr-4", WorkerID: strPtr("w-2"), Status: domain.JobStatusClaimed})

	err := s.View(ctx, func(r storage.Repository) error {
		n, err := r.CountActiveHouses(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	})
	require.NoError(t, err)
}

func TestRepo_ListHomeownerJobsCursor(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		s.PutJob(domain.Job{ID: id, HomeownerID: "h-1", CreatedAt: t0.Add(time.Duration(i) * time.Minute)})
	}
	s.PutJob(domain.Job{ID: "other", HomeownerID: "h-2", CreatedAt: t0})

	var first, second []domain.Job
	err := s.View(ctx, func(r storage.Repository) error {
		var err error
		first, err = r.ListHomeownerJobs(ctx, "h-1", domain.JobPage{PageSize: 2})
		if err != nil {
			return err
		}
		last := first[1]
		second, err = r.ListHomeownerJobs(ctx, "h-1", domain.JobPage{
			PageSize: 2,
			Cursor:   &domain.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID},
		})
		return err
	})
	require.NoError(t, err)

	require.Len(t, first, 3)
	assert.Equal(t, "j5", first[0].ID)
	assert.Equal(t, "j4", first[1].ID)
	require.Len(t, second, 3)
	assert.Equal(t, "j3", second[0].ID)
}

func TestRepo_PayoutTransitions(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutPayout(domain.Payout{ID: "p-1", Status: domain.PayoutStatusPending})

	err := s.WithTx(ctx, func(r storage.Repository) error {
		ok, err := r.MarkPayoutProcessing(ctx, "p-1", t0, t0)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.MarkPayoutProcessing(ctx, "p-1", t0, t0)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = r.SettlePayout(ctx, "p-1", "tr_1", t0)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.SettlePayout(ctx, "p-1", "tr_1", t0)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	p := s.Payouts()[0]
	assert.Equal(t, domain.PayoutStatusCompleted, p.Status)
	assert.Equal(t, "tr_1", *p.TransferRef)
	require.NotNil(t, p.ProcessedAt)
}

func TestRepo_PayoutEndStatesAreFinal(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutPayout(domain.Payout{ID: "done", Status: domain.PayoutStatusCompleted, TransferRef: strPtr("tr_1")})
	s.PutPayout(domain.Payout{ID: "lost", Status: domain.PayoutStatusFailed, FailureReason: strPtr("closed account")})

	err := s.WithTx(ctx, func(r storage.Repository) error {
		ok, err := r.FailPayout(ctx, "done", "reversed", t0)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = r.SettlePayout(ctx, "lost", "tr_2", t0)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	for _, p := range s.Payouts() {
		switch p.ID {
		case "done":
			assert.Equal(t, domain.PayoutStatusCompleted, p.Status)
			assert.Nil(t, p.FailureReason)
		case "lost":
			assert.Equal(t, domain.PayoutStatusFailed, p.Status)
			assert.Nil(t, p.TransferRef)
		}
	}
}

func TestRepo_StaleProcessingPayoutIsDispatchable(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutWorker(domain.WorkerProfile{ID: "w-1", Active: true, MaxHouses: 1, PayoutAccountRef: strPtr("acct_1"), PayoutAccountReady: true})
	s.PutPayout(domain.Payout{ID: "stuck", WorkerID: "w-1", Status: domain.PayoutStatusProcessing, CreatedAt: t0, UpdatedAt: t0})
	s.PutPayout(domain.Payout{ID: "sent", WorkerID: "w-1", Status: domain.PayoutStatusProcessing, TransferRef: strPtr("tr_1"), CreatedAt: t0, UpdatedAt: t0})
	s.PutPayout(domain.Payout{ID: "fresh", WorkerID: "w-1", Status: domain.PayoutStatusProcessing, CreatedAt: t0, UpdatedAt: t0.Add(time.Hour)})

	staleBefore := t0.Add(time.Minute)
	err := s.View(ctx, func(r storage.Repository) error {
		targets, err := r.ListDispatchablePayouts(ctx, 10, staleBefore)
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "stuck", targets[0].ID)
		assert.Equal(t, "acct_1", targets[0].PayoutAccountRef)
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(r storage.Repository) error {
		ok, err := r.MarkPayoutProcessing(ctx, "stuck", staleBefore, staleBefore)
		require.NoError(t, err)
		assert.True(t, ok)

		// the claim refreshes updated_at, so a second run with the same cutoff skips it
		ok, err = r.MarkPayoutProcessing(ctx, "stuck", staleBefore, staleBefore)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = r.MarkPayoutProcessing(ctx, "sent", staleBefore, staleBefore)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}
