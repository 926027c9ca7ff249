package domain

import "time"

// WorkerProfile is the onboarding record of a worker principal
type WorkerProfile struct {
	ID                 string    `db:"id"`
	DisplayName        *string   `db:"display_name"`
	Active             bool      `db:"active"`
	MaxHouses          int       `db:"max_houses"`
	PayoutAccountRef   *string   `db:"payout_account_ref"`
	PayoutAccountReady bool      `db:"payout_account_ready"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// WorkerStats are values derived from job and payout rows, never stored
type WorkerStats struct {
	CompletedJobs       int   `db:"completed_jobs"`
	TotalEarningsCents  int64 `db:"total_earnings_cents"`
	PendingBalanceCents int64 `db:"pending_balance_cents"`
	ActiveHouses        int   `db:"active_houses"`
	RecentJobs          []Job `db:"-"`
}

// WorkerPatch is a partial update of a worker profile
type WorkerPatch struct {
	DisplayName *string `validate:"omitempty,max=120"`
	Active      *bool
	MaxHouses   *int `validate:"omitempty,gte=1,lte=100"`
}

// Empty reports whether the patch sets nothing
func (p WorkerPatch) Empty() bool {
	return p.DisplayName == nil && p.Active == nil && p.MaxHouses == nil
}

// Apply copies the set fields onto w
func (p WorkerPatch) Apply(w *WorkerProfile) {
	if p.DisplayName != nil {
		name := *p.DisplayName
		w.DisplayName = &name
	}
	if p.Active != nil {
		w.Active = *p.Active
	}
	if p.MaxHouses != nil {
		w.MaxHouses = *p.MaxHouses
	}
}

// Validate checks the patch fields
func (p WorkerPatch) Validate() error {
	if p.Empty() {
		return E(KindInvalid, "worker patch", "no fields to update")
	}
	if err := validate.Struct(p); err != nil {
		return &Error{Kind: KindInvalid, Op: "worker patch", Msg: "invalid field", Err: err}
	}
	return nil
}
