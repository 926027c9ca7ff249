// Package pricing splits a job price into the platform fee and the worker payout.
package pricing

import (
	"github.com/cuongbtq/snow-market/internal/domain"
)

// Breakdown is the price split of one job, in cents
type Breakdown struct {
	PriceCents       int64
	PlatformFeeCents int64
	PayoutCents      int64
}

// Quote prices a job of the given type from the settings snapshot.
// Subscription occurrences carry their own list price, use Occurrence for them.
func Quote(jobType domain.JobType, s domain.Settings) (Breakdown, error) {
	switch jobType {
	case domain.JobTypeOneTime:
		return Split(s.BaseOneTimePriceCents, s.PlatformFeeCents), nil
	case domain.JobTypeSubscriptionOccurrence:
		return Breakdown{}, domain.E(domain.KindInvalid, "quote", "subscription occurrences are priced from their subscription")
	default:
		return Breakdown{}, domain.E(domain.KindInvalid, "quote", "unknown job type: "+string(jobType))
	}
}

// Occurrence prices one subscription occurrence at the subscription's stored
// price and the current platform fee
func Occurrence(sub domain.Subscription, s domain.Settings) Breakdown {
	return Split(sub.PriceCents, s.PlatformFeeCents)
}

// Split computes payout = max(0, price - fee)
func Split(priceCents, feeCents int64) Breakdown {
	payout := priceCents - feeCents
	if payout < 0 {
		payout = 0
	}
	return Breakdown{
		PriceCents:       priceCents,
		PlatformFeeCents: feeCents,
		PayoutCents:      payout,
	}
}
