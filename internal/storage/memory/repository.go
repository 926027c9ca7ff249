package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
)

type repo struct {
	st *state
}

var _ storage.Repository = (*repo)(nil)

func (r *repo) GetSettings(_ context.Context) (*domain.Settings, error) {
	s := r.st.settings
	return &s, nil
}

func (r *repo) SaveSettings(_ context.Context, s domain.Settings) error {
	r.st.settings = s
	return nil
}

func (r *repo) InsertAddress(_ context.Context, a *domain.Address) error {
	if _, ok := r.st.addresses[a.ID]; ok {
		return conflict("insert address", "address")
	}
	r.st.addresses[a.ID] = *a
	return nil
}

func (r *repo) GetAddress(_ context.Context, id string) (*domain.Address, error) {
	a, ok := r.st.addresses[id]
	if !ok {
		return nil, notFound("get address", "address")
	}
	return &a, nil
}

func (r *repo) ListAddresses(_ context.Context, userID string) ([]domain.Address, error) {
	out := []domain.Address{}
	for _, a := range r.st.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return newestFirst(out[i].CreatedAt, out[i].ID, out[k].CreatedAt, out[k].ID)
	})
	return out, nil
}

func (r *repo) GetWorkerProfile(_ context.Context, id string) (*domain.WorkerProfile, error) {
	w, ok := r.st.workers[id]
	if !ok {
		return nil, notFound("get worker profile", "worker profile")
	}
	return &w, nil
}

// LockWorkerProfile needs no extra work: the store mutex already excludes other transactions
func (r *repo) LockWorkerProfile(ctx context.Context, id string) (*domain.WorkerProfile, error) {
	return r.GetWorkerProfile(ctx, id)
}

func (r *repo) InsertWorkerProfile(_ context.Context, w *domain.WorkerProfile) error {
	if _, ok := r.st.workers[w.ID]; ok {
		return conflict("insert worker profile", "worker profile")
	}
	r.st.workers[w.ID] = *w
	return nil
}

func (r *repo) UpdateWorkerProfile(_ context.Context, w *domain.WorkerProfile) error {
	if _, ok := r.st.workers[w.ID]; !ok {
		return notFound("update worker profile", "worker profile")
	}
	r.st.workers[w.ID] = *w
	return nil
}

func (r *repo) SetPayoutAccountReady(_ context.Context, accountRef string, ready bool, now time.Time) (bool, error) {
	matched := false
	for id, w := range r.st.workers {
		if w.PayoutAccountRef == nil || *w.PayoutAccountRef != accountRef {
			continue
		}
		w.PayoutAccountReady = ready
		w.UpdatedAt = now
		r.st.workers[id] = w
		matched = true
	}
	return matched, nil
}

func (r *repo) CountActiveHouses(_ context.Context, workerID string) (int, error) {
	houses := make(map[string]struct{})
	for _, j := range r.st.jobs {
		if j.HeldBy(workerID) && j.Status.Active() {
			houses[j.AddressID] = struct{}{}
		}
	}
	return len(houses), nil
}

func (r *repo) WorkerStats(ctx context.Context, workerID string, recent int) (*domain.WorkerStats, error) {
	stats := &domain.WorkerStats{RecentJobs: []domain.Job{}}

	var held []domain.Job
	for _, j := range r.st.jobs {
		if !j.HeldBy(workerID) {
			continue
		}
		held = append(held, j)
		if j.Status == domain.JobStatusCompleted {
			stats.CompletedJobs++
			stats.TotalEarningsCents += j.PayoutCents
		}
	}
	for _, p := range r.st.payouts {
		if p.WorkerID == workerID && (p.Status == domain.PayoutStatusPending || p.Status == domain.PayoutStatusProcessing) {
			stats.PendingBalanceCents += p.AmountCents
		}
	}

	active, err := r.CountActiveHouses(ctx, workerID)
	if err != nil {
		return nil, err
	}
	stats.ActiveHouses = active

	sort.Slice(held, func(i, k int) bool {
		return newestFirst(held[i].CreatedAt, held[i].ID, held[k].CreatedAt, held[k].ID)
	})
	if len(held) > recent {
		held = held[:recent]
	}
	stats.RecentJobs = append(stats.RecentJobs, held...)
	return stats, nil
}

func (r *repo) invoiceTaken(ref *string) bool {
	if ref == nil {
		return false
	}
	for _, j := range r.st.jobs {
		if j.InvoiceRef != nil && *j.InvoiceRef == *ref {
			return true
		}
	}
	return false
}

func (r *repo) InsertJob(_ context.Context, j *domain.Job) error {
	if _, ok := r.st.jobs[j.ID]; ok {
		return conflict("insert job", "job")
	}
	if r.invoiceTaken(j.InvoiceRef) {
		return conflict("insert job", "job for invoice")
	}
	r.st.jobs[j.ID] = *j
	return nil
}

func (r *repo) InsertOccurrence(ctx context.Context, j *domain.Job) (bool, error) {
	if r.invoiceTaken(j.InvoiceRef) {
		return false, nil
	}
	if err := r.InsertJob(ctx, j); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) GetJob(_ context.Context, id string) (*domain.Job, error) {
	j, ok := r.st.jobs[id]
	if !ok {
		return nil, notFound("get job", "job")
	}
	return &j, nil
}

func (r *repo) LockJob(ctx context.Context, id string) (*domain.Job, error) {
	return r.GetJob(ctx, id)
}

func (r *repo) UpdateJobState(_ context.Context, j *domain.Job) error {
	cur, ok := r.st.jobs[j.ID]
	if !ok {
		return notFound("update job", "job")
	}
	cur.Status = j.Status
	cur.WorkerID = j.WorkerID
	cur.ClaimedAt = j.ClaimedAt
	cur.StartedAt = j.StartedAt
	cur.CompletedAt = j.CompletedAt
	cur.CancelledAt = j.CancelledAt
	cur.UpdatedAt = j.UpdatedAt
	r.st.jobs[j.ID] = cur
	return nil
}

func (r *repo) SetCheckoutSession(_ context.Context, jobID, sessionRef string, now time.Time) error {
	j, ok := r.st.jobs[jobID]
	if !ok {
		return notFound("set checkout session", "job")
	}
	ref := sessionRef
	j.CheckoutSessionRef = &ref
	j.UpdatedAt = now
	r.st.jobs[jobID] = j
	return nil
}

func (r *repo) ConfirmCheckout(_ context.Context, jobID, sessionRef, paymentRef string, now time.Time) (bool, error) {
	j, ok := r.st.jobs[jobID]
	if !ok || j.CheckoutSessionRef == nil || *j.CheckoutSessionRef != sessionRef {
		return false, nil
	}
	ref := paymentRef
	j.PaymentRef = &ref
	j.UpdatedAt = now
	r.st.jobs[jobID] = j
	return true, nil
}

func (r *repo) FindJobByPaymentRef(_ context.Context, paymentRef string) (*domain.Job, error) {
	for _, j := range r.st.jobs {
		if j.PaymentRef != nil && *j.PaymentRef == paymentRef {
			return &j, nil
		}
	}
	return nil, notFound("find job by payment", "job")
}

func (r *repo) ListHomeownerJobs(_ context.Context, homeownerID string, page domain.JobPage) ([]domain.Job, error) {
	var out []domain.Job
	for _, j := range r.st.jobs {
		if j.HomeownerID != homeownerID {
			continue
		}
		if c := page.Cursor; c != nil && !newestFirst(c.CreatedAt, c.JobID, j.CreatedAt, j.ID) {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		return newestFirst(out[i].CreatedAt, out[i].ID, out[k].CreatedAt, out[k].ID)
	})
	if limit := page.PageSize + 1; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *repo) ListOpenJobCandidates(_ context.Context, limit int) ([]domain.OpenJob, error) {
	var out []domain.OpenJob
	for _, j := range r.st.jobs {
		if j.Status != domain.JobStatusOpen {
			continue
		}
		a, ok := r.st.addresses[j.AddressID]
		if !ok || a.Lat == nil || a.Lon == nil {
			continue
		}
		out = append(out, domain.OpenJob{
			Job:        j,
			Line1:      a.Line1,
			City:       a.City,
			PostalCode: a.PostalCode,
			Lat:        a.Lat,
			Lon:        a.Lon,
		})
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].ScheduledAt.Equal(out[k].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[k].ScheduledAt)
		}
		return out[i].ID < out[k].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *repo) ListRecentJobs(_ context.Context, limit int) ([]domain.Job, error) {
	out := values(r.st.jobs)
	sort.Slice(out, func(i, k int) bool {
		return newestFirst(out[i].CreatedAt, out[i].ID, out[k].CreatedAt, out[k].ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *repo) TransactionStats(_ context.Context) (*domain.TransactionStats, error) {
	stats := &domain.TransactionStats{}
	for _, j := range r.st.jobs {
		stats.TotalJobs++
		if j.Status != domain.JobStatusCompleted {
			continue
		}
		stats.CompletedJobs++
		stats.TotalRevenueCents += j.PriceCents
		stats.PlatformRevenueCents += j.PlatformFeeCents
		stats.TotalPayoutsCents += j.PayoutCents
	}
	return stats, nil
}

func (r *repo) GetSubscriptionByRef(_ context.Context, externalRef string) (*domain.Subscription, error) {
	s, ok := r.st.subscriptions[externalRef]
	if !ok {
		return nil, notFound("get subscription", "subscription")
	}
	return &s, nil
}

func (r *repo) InsertPayout(_ context.Context, p *domain.Payout) error {
	if _, ok := r.st.payouts[p.ID]; ok {
		return conflict("insert payout", "payout")
	}
	if p.JobID != nil {
		for _, existing := range r.st.payouts {
			if existing.JobID != nil && *existing.JobID == *p.JobID {
				return conflict("insert payout", "payout for job")
			}
		}
	}
	r.st.payouts[p.ID] = *p
	return nil
}

func (r *repo) GetPayout(_ context.Context, id string) (*domain.Payout, error) {
	p, ok := r.st.payouts[id]
	if !ok {
		return nil, notFound("get payout", "payout")
	}
	return &p, nil
}

func (r *repo) ListDispatchablePayouts(_ context.Context, limit int, staleBefore time.Time) ([]domain.PayoutTarget, error) {
	var out []domain.PayoutTarget
	for _, p := range r.st.payouts {
		if !dispatchable(p, staleBefore) {
			continue
		}
		w, ok := r.st.workers[p.WorkerID]
		if !ok || !w.PayoutAccountReady || w.PayoutAccountRef == nil {
			continue
		}
		out = append(out, domain.PayoutTarget{Payout: p, PayoutAccountRef: *w.PayoutAccountRef})
	}
	sort.Slice(out, func(i, k int) bool {
		return newestFirst(out[k].CreatedAt, out[k].ID, out[i].CreatedAt, out[i].ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *repo) ListRecentPayouts(_ context.Context, limit int) ([]domain.Payout, error) {
	out := values(r.st.payouts)
	sort.Slice(out, func(i, k int) bool {
		return newestFirst(out[i].CreatedAt, out[i].ID, out[k].CreatedAt, out[k].ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func dispatchable(p domain.Payout, staleBefore time.Time) bool {
	switch p.Status {
	case domain.PayoutStatusPending:
		return true
	case domain.PayoutStatusProcessing:
		return p.TransferRef == nil && p.UpdatedAt.Before(staleBefore)
	}
	return false
}

func unsettled(p domain.Payout) bool {
	return p.Status == domain.PayoutStatusPending || p.Status == domain.PayoutStatusProcessing
}

func (r *repo) MarkPayoutProcessing(_ context.Context, id string, staleBefore, now time.Time) (bool, error) {
	p, ok := r.st.payouts[id]
	if !ok || !dispatchable(p, staleBefore) {
		return false, nil
	}
	p.Status = domain.PayoutStatusProcessing
	p.UpdatedAt = now
	r.st.payouts[id] = p
	return true, nil
}

func (r *repo) SetPayoutTransfer(_ context.Context, id, transferRef string, now time.Time) error {
	p, ok := r.st.payouts[id]
	if !ok {
		return notFound("set payout transfer", "payout")
	}
	ref := transferRef
	p.TransferRef = &ref
	p.UpdatedAt = now
	r.st.payouts[id] = p
	return nil
}

func (r *repo) SettlePayout(_ context.Context, id, transferRef string, now time.Time) (bool, error) {
	p, ok := r.st.payouts[id]
	if !ok || !unsettled(p) {
		return false, nil
	}
	ref := transferRef
	at := now
	p.Status = domain.PayoutStatusCompleted
	p.TransferRef = &ref
	p.FailureReason = nil
	p.ProcessedAt = &at
	p.UpdatedAt = now
	r.st.payouts[id] = p
	return true, nil
}

func (r *repo) FailPayout(_ context.Context, id, reason string, now time.Time) (bool, error) {
	p, ok := r.st.payouts[id]
	if !ok || !unsettled(p) {
		return false, nil
	}
	msg := reason
	at := now
	p.Status = domain.PayoutStatusFailed
	p.FailureReason = &msg
	p.ProcessedAt = &at
	p.UpdatedAt = now
	r.st.payouts[id] = p
	return true, nil
}

func (r *repo) MarkEventProcessed(_ context.Context, eventID, kind string, _ time.Time) (bool, error) {
	if _, ok := r.st.events[eventID]; ok {
		return false, nil
	}
	r.st.events[eventID] = kind
	return true, nil
}
