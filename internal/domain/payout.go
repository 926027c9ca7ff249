package domain

import "time"

// PayoutStatus is the settlement state of a payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// DefaultFailureReason is recorded when the provider gives no reason
const DefaultFailureReason = "Unknown error"

// Payout is money owed to a worker for a completed job
type Payout struct {
	ID            string       `db:"id"`
	WorkerID      string       `db:"worker_id"`
	JobID         *string      `db:"job_id"`
	AmountCents   int64        `db:"amount_cents"`
	Status        PayoutStatus `db:"status"`
	TransferRef   *string      `db:"transfer_ref"`
	FailureReason *string      `db:"failure_reason"`
	ProcessedAt   *time.Time   `db:"processed_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// PayoutTarget is a pending payout joined with its worker's payout account
type PayoutTarget struct {
	Payout
	PayoutAccountRef string `db:"payout_account_ref"`
}

// TransactionStats summarises revenue over completed jobs
type TransactionStats struct {
	TotalJobs            int   `db:"total_jobs"`
	CompletedJobs        int   `db:"completed_jobs"`
	TotalRevenueCents    int64 `db:"total_revenue_cents"`
	PlatformRevenueCents int64 `db:"platform_revenue_cents"`
	TotalPayoutsCents    int64 `db:"total_payouts_cents"`
}
