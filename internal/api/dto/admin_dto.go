package dto

import (
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
)

// SettingsDTO is the settings response. Updates bind domain.SettingsPatch directly.
type SettingsDTO struct {
	PlatformFeeCents               int64   `json:"platform_fee_cents"`
	DefaultMaxHouses               int     `json:"default_max_houses"`
	BaseOneTimePriceCents          int64   `json:"base_one_time_price_cents"`
	WeeklySubscriptionPriceCents   int64   `json:"weekly_subscription_price_cents"`
	BiweeklySubscriptionPriceCents int64   `json:"biweekly_subscription_price_cents"`
	MonthlySubscriptionPriceCents  int64   `json:"monthly_subscription_price_cents"`
	MaxSearchRadiusKm              float64 `json:"max_search_radius_km"`
	Version                        int64   `json:"version"`
	UpdatedAt                      string  `json:"updated_at"`
}

type TransactionsResponse struct {
	Jobs    []JobDTO    `json:"jobs"`
	Payouts []PayoutDTO `json:"payouts"`
	Stats   StatsDTO    `json:"stats"`
}

type StatsDTO struct {
	TotalJobs            int   `json:"total_jobs"`
	CompletedJobs        int   `json:"completed_jobs"`
	TotalRevenueCents    int64 `json:"total_revenue_cents"`
	PlatformRevenueCents int64 `json:"platform_revenue_cents"`
	TotalPayoutsCents    int64 `json:"total_payouts_cents"`
}

func NewSettingsDTO(s *domain.Settings) SettingsDTO {
	out := SettingsDTO{
		PlatformFeeCents:               s.PlatformFeeCents,
		DefaultMaxHouses:               s.DefaultMaxHouses,
		BaseOneTimePriceCents:          s.BaseOneTimePriceCents,
		WeeklySubscriptionPriceCents:   s.WeeklySubscriptionPriceCents,
		BiweeklySubscriptionPriceCents: s.BiweeklySubscriptionPriceCents,
		MonthlySubscriptionPriceCents:  s.MonthlySubscriptionPriceCents,
		MaxSearchRadiusKm:              s.MaxSearchRadiusKm,
		Version:                        s.Version,
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return out
}

func NewStatsDTO(s domain.TransactionStats) StatsDTO {
	return StatsDTO{
		TotalJobs:            s.TotalJobs,
		CompletedJobs:        s.CompletedJobs,
		TotalRevenueCents:    s.TotalRevenueCents,
		PlatformRevenueCents: s.PlatformRevenueCents,
		TotalPayoutsCents:    s.TotalPayoutsCents,
	}
}
