package domain

import "time"

// JobStatus is the lifecycle state of a job
type JobStatus string

// Job status constants
const (
	JobStatusOpen       JobStatus = "open"
	JobStatusClaimed    JobStatus = "claimed"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no transition leaves s
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// Active reports whether a job in s consumes worker capacity
func (s JobStatus) Active() bool {
	return s == JobStatusClaimed || s == JobStatusInProgress
}

// JobType distinguishes booked jobs from subscription occurrences
type JobType string

const (
	JobTypeOneTime                JobType = "one_time"
	JobTypeSubscriptionOccurrence JobType = "subscription_occurrence"
)

// Job is one unit of snow-clearing work. Amounts are in cents.
type Job struct {
	ID                 string     `db:"id"`
	HomeownerID        string     `db:"homeowner_id"`
	AddressID          string     `db:"address_id"`
	WorkerID           *string    `db:"worker_id"`
	ScheduledAt        time.Time  `db:"scheduled_at"`
	Type               JobType    `db:"type"`
	Status             JobStatus  `db:"status"`
	PriceCents         int64      `db:"price_cents"`
	PlatformFeeCents   int64      `db:"platform_fee_cents"`
	PayoutCents        int64      `db:"payout_cents"`
	CheckoutSessionRef *string    `db:"checkout_session_ref"`
	PaymentRef         *string    `db:"payment_ref"`
	InvoiceRef         *string    `db:"invoice_ref"`
	Notes              *string    `db:"notes"`
	ClaimedAt          *time.Time `db:"claimed_at"`
	StartedAt          *time.Time `db:"started_at"`
	CompletedAt        *time.Time `db:"completed_at"`
	CancelledAt        *time.Time `db:"cancelled_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// AssignedWorker returns the worker holding the job, empty if unassigned
func (j *Job) AssignedWorker() string {
	if j.WorkerID == nil {
		return ""
	}
	return *j.WorkerID
}

// HeldBy reports whether workerID holds the job
func (j *Job) HeldBy(workerID string) bool {
	return workerID != "" && j.AssignedWorker() == workerID
}

// OpenJob is a discovery candidate: an open job joined with its address coordinates
type OpenJob struct {
	Job
	Line1      string   `db:"line1"`
	City       string   `db:"city"`
	PostalCode string   `db:"postal_code"`
	Lat        *float64 `db:"lat"`
	Lon        *float64 `db:"lon"`
}

// JobCursor is a keyset position in a newest-first job listing
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobPage selects one page of a job listing
type JobPage struct {
	PageSize int
	Cursor   *JobCursor
}
