package claim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/lifecycle"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0         = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func clock() time.Time { return t0 }

func openJob(id, addressID string) domain.Job {
	return domain.Job{
		ID:               id,
		HomeownerID:      "h-1",
		AddressID:        addressID,
		Type:             domain.JobTypeOneTime,
		Status:           domain.JobStatusOpen,
		PriceCents:       4000,
		PlatformFeeCents: 500,
		PayoutCents:      3500,
		CreatedAt:        t0,
		UpdatedAt:        t0,
	}
}

func worker(id string, maxHouses int) domain.WorkerProfile {
	return domain.WorkerProfile{ID: id, Active: true, MaxHouses: maxHouses, CreatedAt: t0, UpdatedAt: t0}
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	wid := "w-1"

	tests := []struct {
		name   string
		seed   func(s *memory.Store)
		jobID  string
		kind   domain.Kind
		status domain.JobStatus
	}{
		{
			name:  "missing profile",
			seed:  func(s *memory.Store) { s.PutJob(openJob("job-1", "addr-1")) },
			jobID: "job-1",
			kind:  domain.KindNotEligible,
		},
		{
			name: "inactive worker",
			seed: func(s *memory.Store) {
				w := worker(wid, 3)
				w.Active = false
				s.PutWorker(w)
				s.PutJob(openJob("job-1", "addr-1"))
			},
			jobID: "job-1",
			kind:  domain.KindNotEligible,
		},
		{
			name: "at capacity",
			seed: func(s *memory.Store) {
				s.PutWorker(worker(wid, 1))
				held := openJob("held", "addr-9")
				held.Status = domain.JobStatusInProgress
				held.WorkerID = &wid
				s.PutJob(held)
				s.PutJob(openJob("job-1", "addr-1"))
			},
			jobID: "job-1",
			kind:  domain.KindCapacityExceeded,
		},
		{
			name:  "missing job",
			seed:  func(s *memory.Store) { s.PutWorker(worker(wid, 3)) },
			jobID: "nope",
			kind:  domain.KindNotFound,
		},
		{
			name: "already claimed",
			seed: func(s *memory.Store) {
				s.PutWorker(worker(wid, 3))
				j := openJob("job-1", "addr-1")
				other := "w-2"
				j.Status = domain.JobStatusClaimed
				j.WorkerID = &other
				s.PutJob(j)
			},
			jobID:  "job-1",
			kind:   domain.KindNotAvailable,
			status: domain.JobStatusClaimed,
		},
		{
			name: "cancelled",
			seed: func(s *memory.Store) {
				s.PutWorker(worker(wid, 3))
				j := openJob("job-1", "addr-1")
				j.Status = domain.JobStatusCancelled
				s.PutJob(j)
			},
			jobID:  "job-1",
			kind:   domain.KindNotAvailable,
			status: domain.JobStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			tt.seed(store)
			before := store.Jobs()

			a := NewArbitrator(store, discardLog, clock)
			job, err := a.Claim(ctx, tt.jobID, wid)
			require.Error(t, err)
			assert.Nil(t, job)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, tt.status, domain.StatusOf(err))
			assert.Equal(t, before, store.Jobs(), "failed claim must not mutate any row")
		})
	}
}

func TestClaim_SameAddressCountsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	wid := "w-1"
	store.PutWorker(worker(wid, 1))

	a := NewArbitrator(store, discardLog, clock)
	store.PutJob(openJob("job-1", "addr-1"))
	_, err := a.Claim(ctx, "job-1", wid)
	require.NoError(t, err)

	// a worker at one house with capacity one cannot take a second house
	store.PutJob(openJob("job-2", "addr-2"))
	_, err = a.Claim(ctx, "job-2", wid)
	assert.Equal(t, domain.KindCapacityExceeded, domain.KindOf(err))
}

func TestClaim_Exclusive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutJob(openJob("job-1", "addr-1"))

	const workers = 16
	for i := 0; i < workers; i++ {
		store.PutWorker(worker(fmt.Sprintf("w-%02d", i), 5))
	}

	a := NewArbitrator(store, discardLog, clock)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		losses int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := a.Claim(ctx, "job-1", id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, id)
				return
			}
			if domain.KindOf(err) == domain.KindNotAvailable {
				losses++
			}
		}(fmt.Sprintf("w-%02d", i))
	}
	close(start)
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, workers-1, losses)

	job := store.Jobs()[0]
	assert.Equal(t, domain.JobStatusClaimed, job.Status)
	assert.Equal(t, wins[0], job.AssignedWorker())
}

type stubSessions struct{}

func (stubSessions) CreatePaymentSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	return &payments.Session{Ref: "cs_" + req.JobID, URL: "https://pay.test/" + req.JobID}, nil
}

func TestScenario_BookClaimStartComplete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutAddress(domain.Address{ID: "addr-1", UserID: "h-1", City: "Milton"})
	store.PutWorker(worker("A", 1))
	store.PutWorker(worker("B", 1))

	mgr := lifecycle.NewManager(&lifecycle.Config{
		Store:    store,
		Payments: stubSessions{},
		Logger:   discardLog,
		Clock:    clock,
	})
	arb := NewArbitrator(store, discardLog, clock)

	booking, err := mgr.Book(ctx, lifecycle.BookRequest{
		HomeownerID: "h-1",
		AddressID:   "addr-1",
		ScheduledAt: t0.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	job := booking.Job
	assert.Equal(t, domain.JobStatusOpen, job.Status)
	assert.Nil(t, job.WorkerID)
	assert.Equal(t, int64(4000), job.PriceCents)
	assert.Equal(t, int64(500), job.PlatformFeeCents)
	assert.Equal(t, int64(3500), job.PayoutCents)

	claimed, err := arb.Claim(ctx, job.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusClaimed, claimed.Status)
	assert.Equal(t, "A", claimed.AssignedWorker())

	_, err = arb.Claim(ctx, job.ID, "B")
	assert.Equal(t, domain.KindNotAvailable, domain.KindOf(err))

	started, err := mgr.Start(ctx, job.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, started.Status)

	completed, payout, err := mgr.Complete(ctx, job.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, completed.Status)
	assert.Equal(t, int64(3500), completed.PayoutCents, "payout is fixed at creation")
	assert.Equal(t, completed.PriceCents-completed.PlatformFeeCents, completed.PayoutCents)

	assert.Equal(t, "A", payout.WorkerID)
	assert.Equal(t, int64(3500), payout.AmountCents)
	assert.Equal(t, domain.PayoutStatusPending, payout.Status)
	require.Len(t, store.Payouts(), 1)

	_, _, err = mgr.Complete(ctx, job.ID, "A")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
	assert.Equal(t, domain.JobStatusCompleted, domain.StatusOf(err))
}
