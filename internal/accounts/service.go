// Package accounts handles worker onboarding, worker profiles and homeowner addresses.
package accounts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/geo"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/google/uuid"
)

// RecentJobsLimit is the number of jobs shown on a worker profile
const RecentJobsLimit = 10

// PayoutAccounts opens provider payout accounts and their onboarding links.
// CreatePayoutAccount must return the same account for repeated calls with
// one owner id.
type PayoutAccounts interface {
	CreatePayoutAccount(ctx context.Context, ownerID, ownerEmail string) (string, error)
	CreatePayoutAccountLink(ctx context.Context, accountRef, returnURL, refreshURL string) (string, error)
}

// Config holds service dependencies
type Config struct {
	Store    storage.Store
	Payouts  PayoutAccounts
	Geocoder geo.Geocoder
	Area     geo.ServiceArea
	Logger   *slog.Logger
	Clock    func() time.Time
	// OnboardingReturnURL and OnboardingRefreshURL are handed to the
	// provider with every onboarding link
	OnboardingReturnURL  string
	OnboardingRefreshURL string
}

// Service implements account operations
type Service struct {
	store      storage.Store
	payouts    PayoutAccounts
	geocoder   geo.Geocoder
	area       geo.ServiceArea
	logger     *slog.Logger
	clock      func() time.Time
	returnURL  string
	refreshURL string
}

// Onboarding is the result of an onboarding call
type Onboarding struct {
	Profile *domain.WorkerProfile
	// Created reports whether this call created the profile
	Created bool
	// OnboardingURL is where the worker finishes payout account setup; empty
	// once the account is ready
	OnboardingURL string
}

// NewService creates a new Service instance
func NewService(cfg *Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	geocoder := cfg.Geocoder
	if geocoder == nil {
		geocoder = geo.CentroidGeocoder{Area: cfg.Area}
	}
	return &Service{
		store:      cfg.Store,
		payouts:    cfg.Payouts,
		geocoder:   geocoder,
		area:       cfg.Area,
		logger:     cfg.Logger,
		clock:      clock,
		returnURL:  cfg.OnboardingReturnURL,
		refreshURL: cfg.OnboardingRefreshURL,
	}
}

// Onboard creates the worker profile of a principal on first call, with the
// default capacity from settings and a new payout account. Later calls only
// update the display name. While the payout account is not ready every call
// returns a fresh onboarding link.
func (s *Service) Onboard(ctx context.Context, workerID, email, displayName string) (*Onboarding, error) {
	result := &Onboarding{}

	profile, err := s.workerProfile(ctx, workerID)
	switch {
	case err == nil:
	case domain.KindOf(err) == domain.KindNotFound:
		profile, result.Created, err = s.createWorker(ctx, workerID, email, displayName)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !result.Created && displayName != "" {
		profile, err = s.UpdateWorker(ctx, workerID, domain.WorkerPatch{DisplayName: &displayName})
		if err != nil {
			return nil, err
		}
	}
	result.Profile = profile

	if profile.PayoutAccountRef != nil && !profile.PayoutAccountReady {
		url, err := s.payouts.CreatePayoutAccountLink(ctx, *profile.PayoutAccountRef, s.returnURL, s.refreshURL)
		if err != nil {
			return nil, domain.Wrap(domain.KindUnavailable, "create onboarding link", err)
		}
		result.OnboardingURL = url
	}
	return result, nil
}

func (s *Service) workerProfile(ctx context.Context, workerID string) (*domain.WorkerProfile, error) {
	var profile *domain.WorkerProfile
	err := s.store.View(ctx, func(r storage.Repository) error {
		var err error
		profile, err = r.GetWorkerProfile(ctx, workerID)
		return err
	})
	return profile, err
}

// createWorker opens the payout account and inserts the profile. A
// concurrent first onboarding of the same worker gets the same account from
// the provider, so losing the insert race only means loading the winner's row.
func (s *Service) createWorker(ctx context.Context, workerID, email, displayName string) (*domain.WorkerProfile, bool, error) {
	accountRef, err := s.payouts.CreatePayoutAccount(ctx, workerID, email)
	if err != nil {
		return nil, false, domain.Wrap(domain.KindUnavailable, "create payout account", err)
	}

	var profile *domain.WorkerProfile
	now := s.clock().UTC()
	err = s.store.WithTx(ctx, func(r storage.Repository) error {
		settings, err := r.GetSettings(ctx)
		if err != nil {
			return err
		}
		profile = &domain.WorkerProfile{
			ID:               workerID,
			Active:           true,
			MaxHouses:        settings.DefaultMaxHouses,
			PayoutAccountRef: &accountRef,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if displayName != "" {
			profile.DisplayName = &displayName
		}
		return r.InsertWorkerProfile(ctx, profile)
	})
	if domain.KindOf(err) == domain.KindConflict {
		s.logger.Info("Worker onboarded concurrently", slog.String("worker_id", workerID))
		profile, err = s.workerProfile(ctx, workerID)
		return profile, false, err
	}
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Worker onboarded",
		slog.String("worker_id", workerID),
		slog.Int("max_houses", profile.MaxHouses),
	)
	return profile, true, nil
}

// Profile returns the worker profile with its derived statistics
func (s *Service) Profile(ctx context.Context, workerID string) (*domain.WorkerProfile, *domain.WorkerStats, error) {
	var (
		profile *domain.WorkerProfile
		stats   *domain.WorkerStats
	)
	err := s.store.View(ctx, func(r storage.Repository) error {
		var err error
		profile, err = r.GetWorkerProfile(ctx, workerID)
		if err != nil {
			return err
		}
		stats, err = r.WorkerStats(ctx, workerID, RecentJobsLimit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return profile, stats, nil
}

// UpdateSelf applies a worker's own profile changes. Capacity is administrator-only.
func (s *Service) UpdateSelf(ctx context.Context, workerID string, patch domain.WorkerPatch) (*domain.WorkerProfile, error) {
	if patch.MaxHouses != nil {
		return nil, domain.E(domain.KindForbidden, "update worker", "max_houses can only be changed by an administrator")
	}
	return s.UpdateWorker(ctx, workerID, patch)
}

// UpdateWorker applies any validated patch to a worker profile
func (s *Service) UpdateWorker(ctx context.Context, workerID string, patch domain.WorkerPatch) (*domain.WorkerProfile, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var profile *domain.WorkerProfile
	err := s.store.WithTx(ctx, func(r storage.Repository) error {
		var err error
		profile, err = r.LockWorkerProfile(ctx, workerID)
		if err != nil {
			return err
		}
		patch.Apply(profile)
		profile.UpdatedAt = s.clock().UTC()
		return r.UpdateWorkerProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Worker profile updated", slog.String("worker_id", workerID))
	return profile, nil
}

// AddressInput is a new address as entered by a homeowner
type AddressInput struct {
	Label      string
	Line1      string
	Line2      string
	City       string
	PostalCode string
}

// AddAddress validates the address against the service area, geocodes it and stores it
func (s *Service) AddAddress(ctx context.Context, userID string, in AddressInput) (*domain.Address, error) {
	lines := geo.AddressLines{
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      strings.TrimSpace(in.Line2),
		City:       strings.TrimSpace(in.City),
		PostalCode: in.PostalCode,
	}
	if err := s.area.Validate(lines); err != nil {
		return nil, err
	}

	point, ok, err := s.geocoder.Geocode(ctx, lines)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "geocode address", err)
	}
	if !ok {
		return nil, domain.E(domain.KindInvalid, "geocode address", "address could not be located")
	}

	addr := &domain.Address{
		ID:         uuid.New().String(),
		UserID:     userID,
		Line1:      lines.Line1,
		City:       s.area.City,
		Province:   s.area.Province,
		PostalCode: geo.NormalizePostalCode(in.PostalCode),
		Lat:        &point.Lat,
		Lon:        &point.Lon,
		CreatedAt:  s.clock().UTC(),
	}
	if in.Label != "" {
		label := in.Label
		addr.Label = &label
	}
	if lines.Line2 != "" {
		addr.Line2 = &lines.Line2
	}

	err = s.store.WithTx(ctx, func(r storage.Repository) error {
		return r.InsertAddress(ctx, addr)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Address added",
		slog.String("address_id", addr.ID),
		slog.String("user_id", userID),
	)
	return addr, nil
}

// ListAddresses returns the user's addresses, newest first
func (s *Service) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	var addrs []domain.Address
	err := s.store.View(ctx, func(r storage.Repository) error {
		var err error
		addrs, err = r.ListAddresses(ctx, userID)
		return err
	})
	return addrs, err
}
