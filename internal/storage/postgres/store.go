// Package postgres implements storage.Store on PostgreSQL with sqlx.
//
// Transactions run at READ COMMITTED. Exclusivity comes from explicit row
// locks (SELECT ... FOR UPDATE) rather than SERIALIZABLE, so a claimant that
// loses a race sees the winner's committed status and gets NotAvailable
// instead of a serialization failure. Every transaction sets a local
// lock_timeout; waiting longer fails with KindUnavailable.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

// Store is a storage.Store backed by a PostgreSQL pool
type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store. A zero lockTimeout leaves the server default.
func NewStore(db *sqlx.DB, lockTimeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// WithTx runs fn in one transaction, committing only when fn returns nil
func (s *Store) WithTx(ctx context.Context, fn func(storage.Repository) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return classify("set lock timeout", err)
		}
	}

	if err := fn(&repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback transaction", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// View runs fn with plain statements on the pool
func (s *Store) View(ctx context.Context, fn func(storage.Repository) error) error {
	return fn(&repo{q: s.db})
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
