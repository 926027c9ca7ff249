// Package admin implements the administrative operations: platform settings
// and the transactions overview.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
)

// RecentLimit is the number of jobs and payouts in the transactions overview
const RecentLimit = 100

// Overview is the administrator's view of recent money movement
type Overview struct {
	Jobs    []domain.Job
	Payouts []domain.Payout
	Stats   domain.TransactionStats
}

// Service implements admin operations
type Service struct {
	store  storage.Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewService creates a new Service instance
func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
}

// Settings returns the current settings snapshot
func (s *Service) Settings(ctx context.Context) (*domain.Settings, error) {
	var settings *domain.Settings
	err := s.store.View(ctx, func(r storage.Repository) error {
		var err error
		settings, err = r.GetSettings(ctx)
		return err
	})
	return settings, err
}

// UpdateSettings applies a partial update and returns the new version
func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var next domain.Settings
	err := s.store.WithTx(ctx, func(r storage.Repository) error {
		cur, err := r.GetSettings(ctx)
		if err != nil {
			return err
		}
		next, err = patch.Apply(*cur, s.clock().UTC())
		if err != nil {
			return err
		}
		return r.SaveSettings(ctx, next)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Settings updated",
		slog.Int64("version", next.Version),
		slog.Int64("platform_fee_cents", next.PlatformFeeCents),
	)
	return &next, nil
}

// Transactions returns the most recent jobs and payouts with revenue statistics
func (s *Service) Transactions(ctx context.Context) (*Overview, error) {
	out := &Overview{}
	err := s.store.View(ctx, func(r storage.Repository) error {
		var err error
		if out.Jobs, err = r.ListRecentJobs(ctx, RecentLimit); err != nil {
			return err
		}
		if out.Payouts, err = r.ListRecentPayouts(ctx, RecentLimit); err != nil {
			return err
		}
		stats, err := r.TransactionStats(ctx)
		if err != nil {
			return err
		}
		out.Stats = *stats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
