package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/lib/pq"
)

// Postgres error codes the store distinguishes
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	classConnectionException = "08"
)

// classify tags a driver error with the kind callers act on. Lock and
// statement timeouts become Unavailable so a claim that could not get its row
// lock is distinguishable from one that lost the race.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var tagged *domain.Error
	if errors.As(err, &tagged) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return &domain.Error{Kind: domain.KindUnavailable, Op: op, Msg: "storage unavailable", Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeLockNotAvailable, pqErr.Code == codeQueryCanceled:
			return &domain.Error{Kind: domain.KindUnavailable, Op: op, Msg: "lock or statement timeout", Err: err}
		case pqErr.Code == codeSerializationFailure, pqErr.Code == codeDeadlockDetected:
			return &domain.Error{Kind: domain.KindUnavailable, Op: op, Msg: "transaction conflict, retry", Err: err}
		case pqErr.Code.Class() == classConnectionException:
			return &domain.Error{Kind: domain.KindUnavailable, Op: op, Msg: "storage unavailable", Err: err}
		case pqErr.Code == codeUniqueViolation:
			return &domain.Error{Kind: domain.KindConflict, Op: op, Msg: "already exists", Err: err}
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// notFoundOr maps sql.ErrNoRows to a NotFound error naming what is missing
func notFoundOr(op, what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.E(domain.KindNotFound, op, what+" not found")
	}
	return classify(op, err)
}
