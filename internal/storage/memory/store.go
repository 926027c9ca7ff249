// Package memory is an in-process storage.Store. A single mutex is held for
// the whole of each transaction, which gives serializable isolation; tests and
// local runs use it in place of Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
)

type state struct {
	settings      domain.Settings
	addresses     map[string]domain.Address
	workers       map[string]domain.WorkerProfile
	jobs          map[string]domain.Job
	subscriptions map[string]domain.Subscription
	payouts       map[string]domain.Payout
	events        map[string]string
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		settings:      s.settings,
		addresses:     cloneMap(s.addresses),
		workers:       cloneMap(s.workers),
		jobs:          cloneMap(s.jobs),
		subscriptions: cloneMap(s.subscriptions),
		payouts:       cloneMap(s.payouts),
		events:        cloneMap(s.events),
	}
}

// Store keeps every table in maps guarded by one mutex
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ storage.Store = (*Store)(nil)

// New creates a store seeded with the default settings row
func New() *Store {
	return &Store{
		state: &state{
			settings:      domain.DefaultSettings(),
			addresses:     make(map[string]domain.Address),
			workers:       make(map[string]domain.WorkerProfile),
			jobs:          make(map[string]domain.Job),
			subscriptions: make(map[string]domain.Subscription),
			payouts:       make(map[string]domain.Payout),
			events:        make(map[string]string),
		},
	}
}

// WithTx runs fn against a copy of the current state and installs the copy
// only when fn returns nil
func (s *Store) WithTx(ctx context.Context, fn func(storage.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindUnavailable, "begin transaction", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &repo{st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// View runs fn against a snapshot; writes made through it are discarded
func (s *Store) View(ctx context.Context, fn func(storage.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindUnavailable, "begin read", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&repo{st: s.state.clone()})
}

// Seeding helpers. They bypass transactions and overwrite existing rows.

func (s *Store) PutSettings(v domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.settings = v
}

func (s *Store) PutAddress(v domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.addresses[v.ID] = v
}

func (s *Store) PutWorker(v domain.WorkerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.workers[v.ID] = v
}

func (s *Store) PutJob(v domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.jobs[v.ID] = v
}

func (s *Store) PutSubscription(v domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.subscriptions[v.ExternalRef] = v
}

func (s *Store) PutPayout(v domain.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.payouts[v.ID] = v
}

// Jobs returns every job, oldest first
func (s *Store) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := values(s.state.jobs)
	sort.Slice(jobs, func(i, k int) bool { return newestFirst(jobs[k].CreatedAt, jobs[k].ID, jobs[i].CreatedAt, jobs[i].ID) })
	return jobs
}

// Payouts returns every payout, oldest first
func (s *Store) Payouts() []domain.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	payouts := values(s.state.payouts)
	sort.Slice(payouts, func(i, k int) bool {
		return newestFirst(payouts[k].CreatedAt, payouts[k].ID, payouts[i].CreatedAt, payouts[i].ID)
	})
	return payouts
}

func values[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func notFound(op, what string) error {
	return domain.E(domain.KindNotFound, op, what+" not found")
}

func conflict(op, what string) error {
	return domain.E(domain.KindConflict, op, what+" already exists")
}

// newestFirst orders by created_at desc, id desc
func newestFirst(aAt time.Time, aID string, bAt time.Time, bID string) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return aID > bID
}
