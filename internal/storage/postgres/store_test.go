package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

var jobCols = []string{
	"id", "homeowner_id", "address_id", "worker_id", "scheduled_at",
	"type", "status", "price_cents", "platform_fee_cents", "payout_cents",
	"checkout_session_ref", "payment_ref", "invoice_ref", "notes",
	"claimed_at", "started_at", "completed_at", "cancelled_at",
	"created_at", "updated_at",
}

func openJobRow() *sqlmock.Rows {
	return sqlmock.NewRows(jobCols).AddRow(
		"job-1", "h-1", "addr-1", nil, t0,
		"one_time", "open", 4000, 500, 3500,
		"cs_1", nil, nil, nil,
		nil, nil, nil, nil,
		t0, t0,
	)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(sqlx.NewDb(db, "postgres"), 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return store, mock
}

func TestWithTx_LockAndUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '2000ms'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM jobs j WHERE j.id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(openJobRow())
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(r storage.Repository) error {
		job, err := r.LockJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusOpen, job.Status)
		assert.Equal(t, int64(3500), job.PayoutCents)
		assert.Nil(t, job.WorkerID)

		w := "w-1"
		job.WorkerID = &w
		job.Status = domain.JobStatusClaimed
		return r.UpdateJobState(ctx, job)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_LockTimeoutRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(r storage.Repository) error {
		_, err := r.LockJob(ctx, "job-1")
		return err
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockJob_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(jobCols))
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(r storage.Repository) error {
		_, err := r.LockJob(ctx, "missing")
		return err
	})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOccurrence_Conflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO jobs .* ON CONFLICT \(invoice_ref\) DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 0))

	ref := "in_1"
	err := store.View(ctx, func(r storage.Repository) error {
		created, err := r.InsertOccurrence(ctx, &domain.Job{ID: "occ-1", InvoiceRef: &ref})
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActiveHouses(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT address_id\)`).
		WithArgs("w-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	err := store.View(ctx, func(r storage.Repository) error {
		n, err := r.CountActiveHouses(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayout_AlreadyCompleted(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE payouts SET\s+status = 'completed'`).
		WithArgs("p-1", "tr_1", t0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.View(ctx, func(r storage.Repository) error {
		changed, err := r.SettlePayout(ctx, "p-1", "tr_1", t0)
		require.NoError(t, err)
		assert.False(t, changed)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayoutEndStates_NotReopened(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`(?s)UPDATE payouts SET\s+status = 'failed'.*WHERE id = \$1 AND status IN \('pending', 'processing'\)`).
		WithArgs("p-1", "reversed", t0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)UPDATE payouts SET\s+status = 'completed'.*WHERE id = \$1 AND status IN \('pending', 'processing'\)`).
		WithArgs("p-2", "tr_2", t0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.View(ctx, func(r storage.Repository) error {
		changed, err := r.FailPayout(ctx, "p-1", "reversed", t0)
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = r.SettlePayout(ctx, "p-2", "tr_2", t0)
		require.NoError(t, err)
		assert.False(t, changed)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPayoutProcessing_ReclaimsStale(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	staleBefore := t0.Add(-10 * time.Minute)

	mock.ExpectExec(`(?s)UPDATE payouts SET status = 'processing'.*status = 'processing' AND transfer_ref IS NULL AND updated_at < \$2`).
		WithArgs("p-1", staleBefore, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.View(ctx, func(r storage.Repository) error {
		claimed, err := r.MarkPayoutProcessing(ctx, "p-1", staleBefore, t0)
		require.NoError(t, err)
		assert.True(t, claimed)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.Kind
	}{
		{name: "lock timeout", err: &pq.Error{Code: "55P03"}, kind: domain.KindUnavailable},
		{name: "statement timeout", err: &pq.Error{Code: "57014"}, kind: domain.KindUnavailable},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, kind: domain.KindUnavailable},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, kind: domain.KindUnavailable},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, kind: domain.KindUnavailable},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, kind: domain.KindConflict},
		{name: "deadline", err: context.DeadlineExceeded, kind: domain.KindUnavailable},
		{name: "syntax error", err: &pq.Error{Code: "42601"}, kind: domain.KindInternal},
		{name: "plain", err: errors.New("boom"), kind: domain.KindInternal},
		{name: "already tagged", err: domain.E(domain.KindNotFound, "x", "job not found"), kind: domain.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, domain.KindOf(classify("op", tt.err)))
		})
	}

	assert.NoError(t, classify("op", nil))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(notFoundOr("get", "job", sql.ErrNoRows)))
}
