package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/pricing"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/google/uuid"
)

// SessionCreator opens a provider payment session for a job
type SessionCreator interface {
	CreatePaymentSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error)
}

// Config holds manager dependencies
type Config struct {
	Store    storage.Store
	Payments SessionCreator
	Logger   *slog.Logger
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Manager runs booking and the owned lifecycle transitions
type Manager struct {
	store    storage.Store
	payments SessionCreator
	logger   *slog.Logger
	clock    func() time.Time
}

// NewManager creates a new Manager instance
func NewManager(cfg *Config) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:    cfg.Store,
		payments: cfg.Payments,
		logger:   cfg.Logger,
		clock:    clock,
	}
}

// BookRequest is a homeowner's one-time booking
type BookRequest struct {
	HomeownerID   string
	CustomerEmail string
	AddressID     string
	ScheduledAt   time.Time
	Notes         string
}

// Booking is a created job with the URL the homeowner pays at
type Booking struct {
	Job         *domain.Job
	CheckoutURL string
}

// Book creates an open one-time job priced from the current settings and opens
// a payment session for it
func (m *Manager) Book(ctx context.Context, req BookRequest) (*Booking, error) {
	if req.AddressID == "" || req.ScheduledAt.IsZero() {
		return nil, domain.E(domain.KindInvalid, "book", "missing required fields: address_id, scheduled_at")
	}

	now := m.clock().UTC()
	var job *domain.Job

	err := m.store.WithTx(ctx, func(r storage.Repository) error {
		addr, err := r.GetAddress(ctx, req.AddressID)
		if err != nil {
			return err
		}
		if addr.UserID != req.HomeownerID {
			return domain.E(domain.KindNotFound, "book", "address not found or does not belong to user")
		}

		settings, err := r.GetSettings(ctx)
		if err != nil {
			return err
		}

		quote, err := pricing.Quote(domain.JobTypeOneTime, *settings)
		if err != nil {
			return err
		}

		job = &domain.Job{
			ID:               uuid.New().String(),
			HomeownerID:      req.HomeownerID,
			AddressID:        addr.ID,
			ScheduledAt:      req.ScheduledAt.UTC(),
			Type:             domain.JobTypeOneTime,
			Status:           domain.JobStatusOpen,
			PriceCents:       quote.PriceCents,
			PlatformFeeCents: quote.PlatformFeeCents,
			PayoutCents:      quote.PayoutCents,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if req.Notes != "" {
			notes := req.Notes
			job.Notes = &notes
		}
		return r.InsertJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Job booked",
		slog.String("job_id", job.ID),
		slog.String("homeowner_id", job.HomeownerID),
		slog.Int64("price_cents", job.PriceCents),
	)

	session, err := m.payments.CreatePaymentSession(ctx, payments.SessionRequest{
		AmountCents:   job.PriceCents,
		JobID:         job.ID,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		m.logger.Error("Failed to create payment session",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, domain.Wrap(domain.KindUnavailable, "create payment session", err)
	}

	err = m.store.WithTx(ctx, func(r storage.Repository) error {
		return r.SetCheckoutSession(ctx, job.ID, session.Ref, m.clock().UTC())
	})
	if err != nil {
		return nil, err
	}
	job.CheckoutSessionRef = &session.Ref

	return &Booking{Job: job, CheckoutURL: session.URL}, nil
}

// GetJob returns a job visible to the viewer: its homeowner, its worker, or an admin
func (m *Manager) GetJob(ctx context.Context, jobID, viewerID string, admin bool) (*domain.Job, error) {
	var job *domain.Job
	err := m.store.View(ctx, func(r storage.Repository) error {
		var err error
		job, err = r.GetJob(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !admin && job.HomeownerID != viewerID && !job.HeldBy(viewerID) {
		return nil, domain.E(domain.KindNotFound, "get job", "job not found")
	}
	return job, nil
}

// ListHomeownerJobs returns one page of the homeowner's jobs, newest first.
// The page holds up to PageSize+1 rows so callers can detect a next page.
func (m *Manager) ListHomeownerJobs(ctx context.Context, homeownerID string, page domain.JobPage) ([]domain.Job, error) {
	var jobs []domain.Job
	err := m.store.View(ctx, func(r storage.Repository) error {
		var err error
		jobs, err = r.ListHomeownerJobs(ctx, homeownerID, page)
		return err
	})
	return jobs, err
}

// Start moves a claimed job to in_progress for the worker holding it
func (m *Manager) Start(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	var job *domain.Job
	err := m.store.WithTx(ctx, func(r storage.Repository) error {
		var err error
		job, err = r.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if err := Apply(job, ActionStart, workerID, m.clock().UTC()); err != nil {
			return err
		}
		return r.UpdateJobState(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Job started",
		slog.String("job_id", job.ID),
		slog.String("worker_id", workerID),
	)
	return job, nil
}

// Complete finishes a claimed or in_progress job and records a pending payout
// for its fixed payout amount, atomically
func (m *Manager) Complete(ctx context.Context, jobID, workerID string) (*domain.Job, *domain.Payout, error) {
	var (
		job    *domain.Job
		payout *domain.Payout
	)
	err := m.store.WithTx(ctx, func(r storage.Repository) error {
		var err error
		job, err = r.LockJob(ctx, jobID)
		if err != nil {
			return err
		}

		now := m.clock().UTC()
		if err := Apply(job, ActionComplete, workerID, now); err != nil {
			return err
		}
		if err := r.UpdateJobState(ctx, job); err != nil {
			return err
		}

		jobRef := job.ID
		payout = &domain.Payout{
			ID:          uuid.New().String(),
			WorkerID:    workerID,
			JobID:       &jobRef,
			AmountCents: job.PayoutCents,
			Status:      domain.PayoutStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return r.InsertPayout(ctx, payout)
	})
	if err != nil {
		return nil, nil, err
	}

	m.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("worker_id", workerID),
		slog.String("payout_id", payout.ID),
		slog.Int64("payout_cents", payout.AmountCents),
	)
	return job, payout, nil
}
