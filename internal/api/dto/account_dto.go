package dto

import (
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
)

type OnboardRequest struct {
	DisplayName string `json:"display_name" binding:"max=120"`
}

type OnboardResponse struct {
	Worker        WorkerDTO `json:"worker"`
	Created       bool      `json:"created"`
	OnboardingURL string    `json:"onboarding_url,omitempty"`
}

type UpdateWorkerRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=120"`
	Active      *bool   `json:"active"`
	MaxHouses   *int    `json:"max_houses" binding:"omitempty,gte=1,lte=100"`
}

func (r UpdateWorkerRequest) Patch() domain.WorkerPatch {
	return domain.WorkerPatch{
		DisplayName: r.DisplayName,
		Active:      r.Active,
		MaxHouses:   r.MaxHouses,
	}
}

type WorkerDTO struct {
	WorkerID           string  `json:"worker_id"`
	DisplayName        *string `json:"display_name"`
	Active             bool    `json:"active"`
	MaxHouses          int     `json:"max_houses"`
	PayoutAccountReady bool    `json:"payout_account_ready"`
	CreatedAt          string  `json:"created_at"`
}

type WorkerProfileResponse struct {
	Worker              WorkerDTO `json:"worker"`
	CompletedJobs       int       `json:"completed_jobs"`
	TotalEarningsCents  int64     `json:"total_earnings_cents"`
	PendingBalanceCents int64     `json:"pending_balance_cents"`
	ActiveHouses        int       `json:"active_houses"`
	RecentJobs          []JobDTO  `json:"recent_jobs"`
}

type CreateAddressRequest struct {
	Label      string `json:"label" binding:"max=80"`
	Line1      string `json:"line1" binding:"required,max=200"`
	Line2      string `json:"line2" binding:"max=200"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
}

type AddressDTO struct {
	AddressID  string   `json:"address_id"`
	Label      *string  `json:"label"`
	Line1      string   `json:"line1"`
	Line2      *string  `json:"line2"`
	City       string   `json:"city"`
	Province   string   `json:"province"`
	PostalCode string   `json:"postal_code"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	CreatedAt  string   `json:"created_at"`
}

func NewWorkerDTO(w *domain.WorkerProfile) WorkerDTO {
	return WorkerDTO{
		WorkerID:           w.ID,
		DisplayName:        w.DisplayName,
		Active:             w.Active,
		MaxHouses:          w.MaxHouses,
		PayoutAccountReady: w.PayoutAccountReady,
		CreatedAt:          w.CreatedAt.Format(time.RFC3339),
	}
}

func NewAddressDTO(a *domain.Address) AddressDTO {
	return AddressDTO{
		AddressID:  a.ID,
		Label:      a.Label,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Province:   a.Province,
		PostalCode: a.PostalCode,
		Lat:        a.Lat,
		Lon:        a.Lon,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}
