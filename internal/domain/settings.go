package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SettingsID is the primary key of the single settings row
const SettingsID = 1

// Settings is a versioned snapshot of the platform configuration
type Settings struct {
	PlatformFeeCents               int64     `db:"platform_fee_cents" validate:"gte=0"`
	DefaultMaxHouses               int       `db:"default_max_houses" validate:"gte=1"`
	BaseOneTimePriceCents          int64     `db:"base_one_time_price_cents" validate:"gte=0"`
	WeeklySubscriptionPriceCents   int64     `db:"weekly_subscription_price_cents" validate:"gte=0"`
	BiweeklySubscriptionPriceCents int64     `db:"biweekly_subscription_price_cents" validate:"gte=0"`
	MonthlySubscriptionPriceCents  int64     `db:"monthly_subscription_price_cents" validate:"gte=0"`
	MaxSearchRadiusKm              float64   `db:"max_search_radius_km" validate:"gt=0"`
	Version                        int64     `db:"version"`
	UpdatedAt                      time.Time `db:"updated_at"`
}

// DefaultSettings mirrors the seeded settings row
func DefaultSettings() Settings {
	return Settings{
		PlatformFeeCents:               500,
		DefaultMaxHouses:               5,
		BaseOneTimePriceCents:          4000,
		WeeklySubscriptionPriceCents:   3500,
		BiweeklySubscriptionPriceCents: 3750,
		MonthlySubscriptionPriceCents:  3900,
		MaxSearchRadiusKm:              50,
		Version:                        1,
	}
}

// Validate rejects malformed configuration. The platform fee may never exceed
// a list price, so payout = price - fee always holds without clamping.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &Error{Kind: KindInvalid, Op: "settings", Msg: "invalid settings", Err: err}
	}
	for _, price := range []int64{
		s.BaseOneTimePriceCents,
		s.WeeklySubscriptionPriceCents,
		s.BiweeklySubscriptionPriceCents,
		s.MonthlySubscriptionPriceCents,
	} {
		if s.PlatformFeeCents > price {
			return E(KindInvalid, "settings", "platform fee exceeds a list price")
		}
	}
	return nil
}

// SettingsPatch is an explicit partial update; nil fields are left unchanged
type SettingsPatch struct {
	PlatformFeeCents               *int64   `json:"platform_fee_cents" validate:"omitempty,gte=0"`
	DefaultMaxHouses               *int     `json:"default_max_houses" validate:"omitempty,gte=1"`
	BaseOneTimePriceCents          *int64   `json:"base_one_time_price_cents" validate:"omitempty,gte=0"`
	WeeklySubscriptionPriceCents   *int64   `json:"weekly_subscription_price_cents" validate:"omitempty,gte=0"`
	BiweeklySubscriptionPriceCents *int64   `json:"biweekly_subscription_price_cents" validate:"omitempty,gte=0"`
	MonthlySubscriptionPriceCents  *int64   `json:"monthly_subscription_price_cents" validate:"omitempty,gte=0"`
	MaxSearchRadiusKm              *float64 `json:"max_search_radius_km" validate:"omitempty,gt=0"`
}

// Empty reports whether the patch sets nothing
func (p SettingsPatch) Empty() bool {
	return p.PlatformFeeCents == nil &&
		p.DefaultMaxHouses == nil &&
		p.BaseOneTimePriceCents == nil &&
		p.WeeklySubscriptionPriceCents == nil &&
		p.BiweeklySubscriptionPriceCents == nil &&
		p.MonthlySubscriptionPriceCents == nil &&
		p.MaxSearchRadiusKm == nil
}

// Validate checks each set field in isolation
func (p SettingsPatch) Validate() error {
	if p.Empty() {
		return E(KindInvalid, "settings patch", "no valid fields to update")
	}
	if err := validate.Struct(p); err != nil {
		return &Error{Kind: KindInvalid, Op: "settings patch", Msg: "invalid field", Err: err}
	}
	return nil
}

// Apply returns s with the set fields replaced and the version bumped.
// The merged result is validated as a whole.
func (p SettingsPatch) Apply(s Settings, now time.Time) (Settings, error) {
	if err := p.Validate(); err != nil {
		return s, err
	}
	next := s
	if p.PlatformFeeCents != nil {
		next.PlatformFeeCents = *p.PlatformFeeCents
	}
	if p.DefaultMaxHouses != nil {
		next.DefaultMaxHouses = *p.DefaultMaxHouses
	}
	if p.BaseOneTimePriceCents != nil {
		next.BaseOneTimePriceCents = *p.BaseOneTimePriceCents
	}
	if p.WeeklySubscriptionPriceCents != nil {
		next.WeeklySubscriptionPriceCents = *p.WeeklySubscriptionPriceCents
	}
	if p.BiweeklySubscriptionPriceCents != nil {
		next.BiweeklySubscriptionPriceCents = *p.BiweeklySubscriptionPriceCents
	}
	if p.MonthlySubscriptionPriceCents != nil {
		next.MonthlySubscriptionPriceCents = *p.MonthlySubscriptionPriceCents
	}
	if p.MaxSearchRadiusKm != nil {
		next.MaxSearchRadiusKm = *p.MaxSearchRadiusKm
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	next.Version = s.Version + 1
	next.UpdatedAt = now
	return next, nil
}
