// Package storage defines the transactional store the core issues statements against.
package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
)

// Repository is the statement surface shared by transactions and plain reads.
// Lookups that find nothing return an error of kind domain.KindNotFound.
type Repository interface {
	GetSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error

	InsertAddress(ctx context.Context, a *domain.Address) error
	GetAddress(ctx context.Context, id string) (*domain.Address, error)
	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)

	GetWorkerProfile(ctx context.Context, id string) (*domain.WorkerProfile, error)
	// LockWorkerProfile reads the profile holding an exclusive row lock until the transaction ends
	LockWorkerProfile(ctx context.Context, id string) (*domain.WorkerProfile, error)
	InsertWorkerProfile(ctx context.Context, w *domain.WorkerProfile) error
	UpdateWorkerProfile(ctx context.Context, w *domain.WorkerProfile) error
	SetPayoutAccountReady(ctx context.Context, accountRef string, ready bool, now time.Time) (bool, error)
	// CountActiveHouses counts distinct addresses among the worker's claimed and in_progress jobs
	CountActiveHouses(ctx context.Context, workerID string) (int, error)
	WorkerStats(ctx context.Context, workerID string, recent int) (*domain.WorkerStats, error)

	InsertJob(ctx context.Context, j *domain.Job) error
	// InsertOccurrence inserts j unless a job with the same invoice reference exists
	InsertOccurrence(ctx context.Context, j *domain.Job) (bool, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	// LockJob reads the job holding an exclusive row lock until the transaction ends
	LockJob(ctx context.Context, id string) (*domain.Job, error)
	// UpdateJobState writes status, worker reference and lifecycle timestamps
	UpdateJobState(ctx context.Context, j *domain.Job) error
	SetCheckoutSession(ctx context.Context, jobID, sessionRef string, now time.Time) error
	// ConfirmCheckout records paymentRef on the job created with sessionRef, reporting whether a row changed
	ConfirmCheckout(ctx context.Context, jobID, sessionRef, paymentRef string, now time.Time) (bool, error)
	FindJobByPaymentRef(ctx context.Context, paymentRef string) (*domain.Job, error)
	ListHomeownerJobs(ctx context.Context, homeownerID string, page domain.JobPage) ([]domain.Job, error)
	// ListOpenJobCandidates returns open jobs whose address has coordinates, earliest scheduled first
	ListOpenJobCandidates(ctx context.Context, limit int) ([]domain.OpenJob, error)
	ListRecentJobs(ctx context.Context, limit int) ([]domain.Job, error)
	TransactionStats(ctx context.Context) (*domain.TransactionStats, error)

	GetSubscriptionByRef(ctx context.Context, externalRef string) (*domain.Subscription, error)

	InsertPayout(ctx context.Context, p *domain.Payout) error
	GetPayout(ctx context.Context, id string) (*domain.Payout, error)
	// ListDispatchablePayouts returns pending payouts, plus processing payouts
	// with no transfer ref last touched before staleBefore, whose worker has a
	// ready payout account
	ListDispatchablePayouts(ctx context.Context, limit int, staleBefore time.Time) ([]domain.PayoutTarget, error)
	ListRecentPayouts(ctx context.Context, limit int) ([]domain.Payout, error)
	// MarkPayoutProcessing claims a payout that ListDispatchablePayouts would select
	MarkPayoutProcessing(ctx context.Context, id string, staleBefore, now time.Time) (bool, error)
	SetPayoutTransfer(ctx context.Context, id, transferRef string, now time.Time) error
	// SettlePayout and FailPayout only move a payout that is not yet completed or failed
	SettlePayout(ctx context.Context, id, transferRef string, now time.Time) (bool, error)
	FailPayout(ctx context.Context, id, reason string, now time.Time) (bool, error)

	// MarkEventProcessed records a provider event id, reporting false if it was already recorded
	MarkEventProcessed(ctx context.Context, eventID, kind string, now time.Time) (bool, error)
}

// Store runs statements either inside an all-or-nothing transaction or as plain reads
type Store interface {
	// WithTx commits when fn returns nil and rolls back every statement otherwise
	WithTx(ctx context.Context, fn func(Repository) error) error
	View(ctx context.Context, fn func(Repository) error) error
}
