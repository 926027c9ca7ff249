// Package claim arbitrates concurrent claims so that at most one worker ever
// holds a job and no worker exceeds their distinct-address capacity.
package claim

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/lifecycle"
	"github.com/cuongbtq/snow-market/internal/storage"
)

// Arbitrator runs claims inside single store transactions
type Arbitrator struct {
	store  storage.Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewArbitrator creates a new Arbitrator. A nil clock defaults to time.Now.
func NewArbitrator(store storage.Store, logger *slog.Logger, clock func() time.Time) *Arbitrator {
	if clock == nil {
		clock = time.Now
	}
	return &Arbitrator{
		store:  store,
		logger: logger,
		clock:  clock,
	}
}

// Claim assigns the open job to workerID.
//
// The worker profile row is locked first so one worker's concurrent claims
// serialize on capacity. The job row is then locked and its status checked
// under that lock, which is what makes the outcome exclusive: a loser of the
// race observes a non-open status and gets NotAvailable. Any failure rolls
// back every statement, locks included.
func (a *Arbitrator) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	const op = "claim"
	var job *domain.Job

	err := a.store.WithTx(ctx, func(r storage.Repository) error {
		worker, err := r.LockWorkerProfile(ctx, workerID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return domain.E(domain.KindNotEligible, op, "worker profile not found, complete onboarding")
			}
			return err
		}
		if !worker.Active {
			return domain.E(domain.KindNotEligible, op, "worker profile is not active")
		}

		active, err := r.CountActiveHouses(ctx, workerID)
		if err != nil {
			return err
		}
		if active >= worker.MaxHouses {
			return domain.E(domain.KindCapacityExceeded, op, "maximum number of active houses reached")
		}

		job, err = r.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusOpen {
			return &domain.Error{
				Kind:   domain.KindNotAvailable,
				Op:     op,
				Msg:    "job is no longer available",
				Status: job.Status,
			}
		}

		if err := lifecycle.Apply(job, lifecycle.ActionClaim, workerID, a.clock().UTC()); err != nil {
			return err
		}
		return r.UpdateJobState(ctx, job)
	})
	if err != nil {
		a.logger.Debug("Claim rejected",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	a.logger.Info("Job claimed",
		slog.String("job_id", job.ID),
		slog.String("worker_id", workerID),
	)
	return job, nil
}
