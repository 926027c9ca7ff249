package dto

import (
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
)

type BookJobRequest struct {
	AddressID   string `json:"address_id" binding:"required"`
	ScheduledAt string `json:"scheduled_at" binding:"required"`
	Notes       string `json:"notes" binding:"max=1000"`
}

type BookJobResponse struct {
	Job         JobDTO `json:"job"`
	CheckoutURL string `json:"checkout_url"`
}

type ListJobsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type OpenJobsRequest struct {
	Lat   *float64 `form:"lat" binding:"omitempty,latitude"`
	Lon   *float64 `form:"lon" binding:"omitempty,longitude"`
	Limit int      `form:"limit" binding:"omitempty,gte=1,lte=200"`
}

type OpenJobDTO struct {
	JobDTO
	Line1      string  `json:"line1"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	DistanceKm float64 `json:"distance_km"`
}

type CompleteJobResponse struct {
	Job    JobDTO    `json:"job"`
	Payout PayoutDTO `json:"payout"`
}

type JobDTO struct {
	JobID            string  `json:"job_id"`
	HomeownerID      string  `json:"homeowner_id"`
	AddressID        string  `json:"address_id"`
	WorkerID         *string `json:"worker_id"`
	Type             string  `json:"type"`
	Status           string  `json:"status"`
	PriceCents       int64   `json:"price_cents"`
	PlatformFeeCents int64   `json:"platform_fee_cents"`
	PayoutCents      int64   `json:"payout_cents"`
	Notes            *string `json:"notes,omitempty"`
	ScheduledAt      string  `json:"scheduled_at"`
	ClaimedAt        *string `json:"claimed_at,omitempty"`
	StartedAt        *string `json:"started_at,omitempty"`
	CompletedAt      *string `json:"completed_at,omitempty"`
	CancelledAt      *string `json:"cancelled_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type PayoutDTO struct {
	PayoutID      string  `json:"payout_id"`
	WorkerID      string  `json:"worker_id"`
	JobID         *string `json:"job_id"`
	AmountCents   int64   `json:"amount_cents"`
	Status        string  `json:"status"`
	TransferRef   *string `json:"transfer_ref,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	ProcessedAt   *string `json:"processed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func NewJobDTO(j *domain.Job) JobDTO {
	return JobDTO{
		JobID:            j.ID,
		HomeownerID:      j.HomeownerID,
		AddressID:        j.AddressID,
		WorkerID:         j.WorkerID,
		Type:             string(j.Type),
		Status:           string(j.Status),
		PriceCents:       j.PriceCents,
		PlatformFeeCents: j.PlatformFeeCents,
		PayoutCents:      j.PayoutCents,
		Notes:            j.Notes,
		ScheduledAt:      j.ScheduledAt.Format(time.RFC3339),
		ClaimedAt:        formatTime(j.ClaimedAt),
		StartedAt:        formatTime(j.StartedAt),
		CompletedAt:      formatTime(j.CompletedAt),
		CancelledAt:      formatTime(j.CancelledAt),
		CreatedAt:        j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        j.UpdatedAt.Format(time.RFC3339),
	}
}

func NewJobDTOs(jobs []domain.Job) []JobDTO {
	out := make([]JobDTO, len(jobs))
	for i := range jobs {
		out[i] = NewJobDTO(&jobs[i])
	}
	return out
}

func NewPayoutDTO(p *domain.Payout) PayoutDTO {
	return PayoutDTO{
		PayoutID:      p.ID,
		WorkerID:      p.WorkerID,
		JobID:         p.JobID,
		AmountCents:   p.AmountCents,
		Status:        string(p.Status),
		TransferRef:   p.TransferRef,
		FailureReason: p.FailureReason,
		ProcessedAt:   formatTime(p.ProcessedAt),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

func NewPayoutDTOs(payouts []domain.Payout) []PayoutDTO {
	out := make([]PayoutDTO, len(payouts))
	for i := range payouts {
		out[i] = NewPayoutDTO(&payouts[i])
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
