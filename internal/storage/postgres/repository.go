package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	j.id, j.homeowner_id, j.address_id, j.worker_id, j.scheduled_at,
	j.type, j.status, j.price_cents, j.platform_fee_cents, j.payout_cents,
	j.checkout_session_ref, j.payment_ref, j.invoice_ref, j.notes,
	j.claimed_at, j.started_at, j.completed_at, j.cancelled_at,
	j.created_at, j.updated_at`

const workerColumns = `
	id, display_name, active, max_houses, payout_account_ref,
	payout_account_ready, created_at, updated_at`

const payoutColumns = `
	p.id, p.worker_id, p.job_id, p.amount_cents, p.status, p.transfer_ref,
	p.failure_reason, p.processed_at, p.created_at, p.updated_at`

const addressColumns = `
	id, user_id, label, line1, line2, city, province, postal_code, lat, lon, created_at`

// repo issues statements on either a transaction or the pool
type repo struct {
	q sqlx.ExtContext
}

var _ storage.Repository = (*repo)(nil)

func affected(op string, res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(op, err)
	}
	return n > 0, nil
}

func (r *repo) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return classify(op, err)
	}
	return nil
}

func (r *repo) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var s domain.Settings
	query := `
		SELECT
			platform_fee_cents, default_max_houses, base_one_time_price_cents,
			weekly_subscription_price_cents, biweekly_subscription_price_cents,
			monthly_subscription_price_cents, max_search_radius_km, version, updated_at
		FROM admin_settings
		WHERE id = $1
	`
	if err := sqlx.GetContext(ctx, r.q, &s, query, domain.SettingsID); err != nil {
		return nil, notFoundOr("get settings", "settings", err)
	}
	return &s, nil
}

func (r *repo) SaveSettings(ctx context.Context, s domain.Settings) error {
	query := `
		UPDATE admin_settings SET
			platform_fee_cents = $2,
			default_max_houses = $3,
			base_one_time_price_cents = $4,
			weekly_subscription_price_cents = $5,
			biweekly_subscription_price_cents = $6,
			monthly_subscription_price_cents = $7,
			max_search_radius_km = $8,
			version = $9,
			updated_at = $10
		WHERE id = $1
	`
	return r.exec(ctx, "save settings", query,
		domain.SettingsID,
		s.PlatformFeeCents,
		s.DefaultMaxHouses,
		s.BaseOneTimePriceCents,
		s.WeeklySubscriptionPriceCents,
		s.BiweeklySubscriptionPriceCents,
		s.MonthlySubscriptionPriceCents,
		s.MaxSearchRadiusKm,
		s.Version,
		s.UpdatedAt,
	)
}

func (r *repo) InsertAddress(ctx context.Context, a *domain.Address) error {
	query := `
		INSERT INTO addresses (
			id, user_id, label, line1, line2, city, province,
			postal_code, lat, lon, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11
		)
	`
	return r.exec(ctx, "insert address", query,
		a.ID, a.UserID, a.Label, a.Line1, a.Line2, a.City, a.Province,
		a.PostalCode, a.Lat, a.Lon, a.CreatedAt,
	)
}

func (r *repo) GetAddress(ctx context.Context, id string) (*domain.Address, error) {
	var a domain.Address
	query := `SELECT` + addressColumns + ` FROM addresses WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &a, query, id); err != nil {
		return nil, notFoundOr("get address", "address", err)
	}
	return &a, nil
}

func (r *repo) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	addrs := []domain.Address{}
	query := `SELECT` + addressColumns + ` FROM addresses WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	if err := sqlx.SelectContext(ctx, r.q, &addrs, query, userID); err != nil {
		return nil, classify("list addresses", err)
	}
	return addrs, nil
}

func (r *repo) GetWorkerProfile(ctx context.Context, id string) (*domain.WorkerProfile, error) {
	var w domain.WorkerProfile
	query := `SELECT` + workerColumns + ` FROM worker_profiles WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &w, query, id); err != nil {
		return nil, notFoundOr("get worker profile", "worker profile", err)
	}
	return &w, nil
}

func (r *repo) LockWorkerProfile(ctx context.Context, id string) (*domain.WorkerProfile, error) {
	var w domain.WorkerProfile
	query := `SELECT` + workerColumns + ` FROM worker_profiles WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.q, &w, query, id); err != nil {
		return nil, notFoundOr("lock worker profile", "worker profile", err)
	}
	return &w, nil
}

func (r *repo) InsertWorkerProfile(ctx context.Context, w *domain.WorkerProfile) error {
	query := `
		INSERT INTO worker_profiles (
			id, display_name, active, max_houses, payout_account_ref,
			payout_account_ready, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)
	`
	return r.exec(ctx, "insert worker profile", query,
		w.ID, w.DisplayName, w.Active, w.MaxHouses, w.PayoutAccountRef,
		w.PayoutAccountReady, w.CreatedAt, w.UpdatedAt,
	)
}

func (r *repo) UpdateWorkerProfile(ctx context.Context, w *domain.WorkerProfile) error {
	query := `
		UPDATE worker_profiles SET
			display_name = $2,
			active = $3,
			max_houses = $4,
			updated_at = $5
		WHERE id = $1
	`
	res, err := r.q.ExecContext(ctx, query, w.ID, w.DisplayName, w.Active, w.MaxHouses, w.UpdatedAt)
	ok, err := affected("update worker profile", res, err)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "update worker profile", "worker profile not found")
	}
	return nil
}

func (r *repo) SetPayoutAccountReady(ctx context.Context, accountRef string, ready bool, now time.Time) (bool, error) {
	query := `
		UPDATE worker_profiles SET payout_account_ready = $2, updated_at = $3
		WHERE payout_account_ref = $1
	`
	res, err := r.q.ExecContext(ctx, query, accountRef, ready, now)
	return affected("set payout account ready", res, err)
}

func (r *repo) CountActiveHouses(ctx context.Context, workerID string) (int, error) {
	var n int
	query := `
		SELECT COUNT(DISTINCT address_id)
		FROM jobs
		WHERE worker_id = $1 AND status IN ('claimed', 'in_progress')
	`
	if err := sqlx.GetContext(ctx, r.q, &n, query, workerID); err != nil {
		return 0, classify("count active houses", err)
	}
	return n, nil
}

func (r *repo) WorkerStats(ctx context.Context, workerID string, recent int) (*domain.WorkerStats, error) {
	var stats domain.WorkerStats
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_jobs,
			COALESCE(SUM(payout_cents) FILTER (WHERE status = 'completed'), 0)::BIGINT AS total_earnings_cents,
			(
				SELECT COALESCE(SUM(amount_cents), 0)::BIGINT
				FROM payouts
				WHERE worker_id = $1 AND status IN ('pending', 'processing')
			) AS pending_balance_cents,
			COUNT(DISTINCT address_id) FILTER (WHERE status IN ('claimed', 'in_progress')) AS active_houses
		FROM jobs
		WHERE worker_id = $1
	`
	if err := sqlx.GetContext(ctx, r.q, &stats, query, workerID); err != nil {
		return nil, classify("worker stats", err)
	}

	stats.RecentJobs = []domain.Job{}
	recentQuery := `SELECT` + jobColumns + ` FROM jobs j WHERE j.worker_id = $1 ORDER BY j.created_at DESC, j.id DESC LIMIT $2`
	if err := sqlx.SelectContext(ctx, r.q, &stats.RecentJobs, recentQuery, workerID, recent); err != nil {
		return nil, classify("worker recent jobs", err)
	}
	return &stats, nil
}

const insertJob = `
	INSERT INTO jobs (
		id, homeowner_id, address_id, worker_id, scheduled_at,
		type, status, price_cents, platform_fee_cents, payout_cents,
		checkout_session_ref, payment_ref, invoice_ref, notes,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16
	)`

func jobArgs(j *domain.Job) []interface{} {
	return []interface{}{
		j.ID, j.HomeownerID, j.AddressID, j.WorkerID, j.ScheduledAt,
		j.Type, j.Status, j.PriceCents, j.PlatformFeeCents, j.PayoutCents,
		j.CheckoutSessionRef, j.PaymentRef, j.InvoiceRef, j.Notes,
		j.CreatedAt, j.UpdatedAt,
	}
}

func (r *repo) InsertJob(ctx context.Context, j *domain.Job) error {
	return r.exec(ctx, "insert job", insertJob, jobArgs(j)...)
}

func (r *repo) InsertOccurrence(ctx context.Context, j *domain.Job) (bool, error) {
	res, err := r.q.ExecContext(ctx, insertJob+` ON CONFLICT (invoice_ref) DO NOTHING`, jobArgs(j)...)
	return affected("insert occurrence", res, err)
}

func (r *repo) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	query := `SELECT` + jobColumns + ` FROM jobs j WHERE j.id = $1`
	if err := sqlx.GetContext(ctx, r.q, &j, query, id); err != nil {
		return nil, notFoundOr("get job", "job", err)
	}
	return &j, nil
}

func (r *repo) LockJob(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	query := `SELECT` + jobColumns + ` FROM jobs j WHERE j.id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.q, &j, query, id); err != nil {
		return nil, notFoundOr("lock job", "job", err)
	}
	return &j, nil
}

func (r *repo) UpdateJobState(ctx context.Context, j *domain.Job) error {
	query := `
		UPDATE jobs SET
			status = $2,
			worker_id = $3,
			claimed_at = $4,
			started_at = $5,
			completed_at = $6,
			cancelled_at = $7,
			updated_at = $8
		WHERE id = $1
	`
	res, err := r.q.ExecContext(ctx, query,
		j.ID, j.Status, j.WorkerID, j.ClaimedAt, j.StartedAt, j.CompletedAt, j.CancelledAt, j.UpdatedAt,
	)
	ok, err := affected("update job state", res, err)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "update job state", "job not found")
	}
	return nil
}

func (r *repo) SetCheckoutSession(ctx context.Context, jobID, sessionRef string, now time.Time) error {
	query := `UPDATE jobs SET checkout_session_ref = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, "set checkout session", query, jobID, sessionRef, now)
}

func (r *repo) ConfirmCheckout(ctx context.Context, jobID, sessionRef, paymentRef string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs SET payment_ref = $3, updated_at = $4
		WHERE id = $1 AND checkout_session_ref = $2
	`
	res, err := r.q.ExecContext(ctx, query, jobID, sessionRef, paymentRef, now)
	return affected("confirm checkout", res, err)
}

func (r *repo) FindJobByPaymentRef(ctx context.Context, paymentRef string) (*domain.Job, error) {
	var j domain.Job
	query := `SELECT` + jobColumns + ` FROM jobs j WHERE j.payment_ref = $1 LIMIT 1`
	if err := sqlx.GetContext(ctx, r.q, &j, query, paymentRef); err != nil {
		return nil, notFoundOr("find job by payment", "job", err)
	}
	return &j, nil
}

func (r *repo) ListHomeownerJobs(ctx context.Context, homeownerID string, page domain.JobPage) ([]domain.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs j WHERE j.homeowner_id = $1`
	args := []interface{}{homeownerID}
	argIdx := 2

	if page.Cursor != nil {
		query += fmt.Sprintf(" AND (j.created_at, j.id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, page.Cursor.CreatedAt, page.Cursor.JobID)
		argIdx += 2
	}

	// one extra row tells the caller whether a next page exists
	query += fmt.Sprintf(" ORDER BY j.created_at DESC, j.id DESC LIMIT $%d", argIdx)
	args = append(args, page.PageSize+1)

	jobs := []domain.Job{}
	if err := sqlx.SelectContext(ctx, r.q, &jobs, query, args...); err != nil {
		return nil, classify("list homeowner jobs", err)
	}
	return jobs, nil
}

func (r *repo) ListOpenJobCandidates(ctx context.Context, limit int) ([]domain.OpenJob, error) {
	query := `
		SELECT` + jobColumns + `,
			a.line1, a.city, a.postal_code, a.lat, a.lon
		FROM jobs j
		JOIN addresses a ON a.id = j.address_id
		WHERE j.status = 'open' AND a.lat IS NOT NULL AND a.lon IS NOT NULL
		ORDER BY j.scheduled_at ASC, j.id ASC
		LIMIT $1
	`
	jobs := []domain.OpenJob{}
	if err := sqlx.SelectContext(ctx, r.q, &jobs, query, limit); err != nil {
		return nil, classify("list open jobs", err)
	}
	return jobs, nil
}

func (r *repo) ListRecentJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	jobs := []domain.Job{}
	query := `SELECT` + jobColumns + ` FROM jobs j ORDER BY j.created_at DESC, j.id DESC LIMIT $1`
	if err := sqlx.SelectContext(ctx, r.q, &jobs, query, limit); err != nil {
		return nil, classify("list recent jobs", err)
	}
	return jobs, nil
}

func (r *repo) TransactionStats(ctx context.Context) (*domain.TransactionStats, error) {
	var stats domain.TransactionStats
	query := `
		SELECT
			COUNT(*) AS total_jobs,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_jobs,
			COALESCE(SUM(price_cents) FILTER (WHERE status = 'completed'), 0)::BIGINT AS total_revenue_cents,
			COALESCE(SUM(platform_fee_cents) FILTER (WHERE status = 'completed'), 0)::BIGINT AS platform_revenue_cents,
			COALESCE(SUM(payout_cents) FILTER (WHERE status = 'completed'), 0)::BIGINT AS total_payouts_cents
		FROM jobs
	`
	if err := sqlx.GetContext(ctx, r.q, &stats, query); err != nil {
		return nil, classify("transaction stats", err)
	}
	return &stats, nil
}

func (r *repo) GetSubscriptionByRef(ctx context.Context, externalRef string) (*domain.Subscription, error) {
	var s domain.Subscription
	query := `
		SELECT id, homeowner_id, address_id, external_ref, frequency, price_cents, active, created_at
		FROM subscriptions
		WHERE external_ref = $1
	`
	if err := sqlx.GetContext(ctx, r.q, &s, query, externalRef); err != nil {
		return nil, notFoundOr("get subscription", "subscription", err)
	}
	return &s, nil
}

func (r *repo) InsertPayout(ctx context.Context, p *domain.Payout) error {
	query := `
		INSERT INTO payouts (
			id, worker_id, job_id, amount_cents, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`
	return r.exec(ctx, "insert payout", query,
		p.ID, p.WorkerID, p.JobID, p.AmountCents, p.Status, p.CreatedAt, p.UpdatedAt,
	)
}

func (r *repo) GetPayout(ctx context.Context, id string) (*domain.Payout, error) {
	var p domain.Payout
	query := `SELECT` + payoutColumns + ` FROM payouts p WHERE p.id = $1`
	if err := sqlx.GetContext(ctx, r.q, &p, query, id); err != nil {
		return nil, notFoundOr("get payout", "payout", err)
	}
	return &p, nil
}

func (r *repo) ListDispatchablePayouts(ctx context.Context, limit int, staleBefore time.Time) ([]domain.PayoutTarget, error) {
	query := `
		SELECT` + payoutColumns + `, w.payout_account_ref
		FROM payouts p
		JOIN worker_profiles w ON w.id = p.worker_id
		WHERE (p.status = 'pending'
				OR (p.status = 'processing' AND p.transfer_ref IS NULL AND p.updated_at < $2))
			AND w.payout_account_ready
			AND w.payout_account_ref IS NOT NULL
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT $1
	`
	targets := []domain.PayoutTarget{}
	if err := sqlx.SelectContext(ctx, r.q, &targets, query, limit, staleBefore); err != nil {
		return nil, classify("list dispatchable payouts", err)
	}
	return targets, nil
}

func (r *repo) ListRecentPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	payouts := []domain.Payout{}
	query := `SELECT` + payoutColumns + ` FROM payouts p ORDER BY p.created_at DESC, p.id DESC LIMIT $1`
	if err := sqlx.SelectContext(ctx, r.q, &payouts, query, limit); err != nil {
		return nil, classify("list recent payouts", err)
	}
	return payouts, nil
}

func (r *repo) MarkPayoutProcessing(ctx context.Context, id string, staleBefore, now time.Time) (bool, error) {
	query := `
		UPDATE payouts SET status = 'processing', updated_at = $3
		WHERE id = $1
			AND (status = 'pending'
				OR (status = 'processing' AND transfer_ref IS NULL AND updated_at < $2))
	`
	res, err := r.q.ExecContext(ctx, query, id, staleBefore, now)
	return affected("mark payout processing", res, err)
}

func (r *repo) SetPayoutTransfer(ctx context.Context, id, transferRef string, now time.Time) error {
	query := `UPDATE payouts SET transfer_ref = $2, updated_at = $3 WHERE id = $1`
	res, err := r.q.ExecContext(ctx, query, id, transferRef, now)
	ok, err := affected("set payout transfer", res, err)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "set payout transfer", "payout not found")
	}
	return nil
}

func (r *repo) SettlePayout(ctx context.Context, id, transferRef string, now time.Time) (bool, error) {
	query := `
		UPDATE payouts SET
			status = 'completed',
			transfer_ref = $2,
			failure_reason = NULL,
			processed_at = $3,
			updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	res, err := r.q.ExecContext(ctx, query, id, transferRef, now)
	return affected("settle payout", res, err)
}

func (r *repo) FailPayout(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE payouts SET
			status = 'failed',
			failure_reason = $2,
			processed_at = $3,
			updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	res, err := r.q.ExecContext(ctx, query, id, reason, now)
	return affected("fail payout", res, err)
}

func (r *repo) MarkEventProcessed(ctx context.Context, eventID, kind string, now time.Time) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, kind, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`
	res, err := r.q.ExecContext(ctx, query, eventID, kind, now)
	return affected("mark event processed", res, err)
}
