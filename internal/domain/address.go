package domain

import "time"

// Address is a service location owned by a homeowner
type Address struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Label      *string   `db:"label"`
	Line1      string    `db:"line1"`
	Line2      *string   `db:"line2"`
	City       string    `db:"city"`
	Province   string    `db:"province"`
	PostalCode string    `db:"postal_code"`
	Lat        *float64  `db:"lat"`
	Lon        *float64  `db:"lon"`
	CreatedAt  time.Time `db:"created_at"`
}

// SubscriptionFrequency is the billing interval of a subscription
type SubscriptionFrequency string

const (
	FrequencyWeekly   SubscriptionFrequency = "weekly"
	FrequencyBiweekly SubscriptionFrequency = "biweekly"
	FrequencyMonthly  SubscriptionFrequency = "monthly"
)

// Subscription is a recurring plan billed by the payment provider
type Subscription struct {
	ID          string                `db:"id"`
	HomeownerID string                `db:"homeowner_id"`
	AddressID   string                `db:"address_id"`
	ExternalRef string                `db:"external_ref"`
	Frequency   SubscriptionFrequency `db:"frequency"`
	PriceCents  int64                 `db:"price_cents"`
	Active      bool                  `db:"active"`
	CreatedAt   time.Time             `db:"created_at"`
}
