package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error into a caller-visible outcome
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthenticated
	KindForbidden
	KindNotEligible
	KindCapacityExceeded
	KindNotFound
	KindNotAvailable
	KindUnavailable
	KindPreconditionFailed
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindInvalid:            "invalid",
	KindUnauthenticated:    "unauthenticated",
	KindForbidden:          "forbidden",
	KindNotEligible:        "not_eligible",
	KindCapacityExceeded:   "capacity_exceeded",
	KindNotFound:           "not_found",
	KindNotAvailable:       "not_available",
	KindUnavailable:        "unavailable",
	KindPreconditionFailed: "precondition_failed",
	KindConflict:           "conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "internal"
}

// Retryable reports whether the same operation may be retried as is
func (k Kind) Retryable() bool {
	return k == KindUnavailable
}

// Error is the tagged error returned by every core operation
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	// Status is the job's actual status for PreconditionFailed and NotAvailable
	Status JobStatus
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != "" {
		msg = fmt.Sprintf("%s (status: %s)", msg, e.Status)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

var (
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotEligible        = &Error{Kind: KindNotEligible}
	ErrCapacityExceeded   = &Error{Kind: KindCapacityExceeded}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrNotAvailable       = &Error{Kind: KindNotAvailable}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrConflict           = &Error{Kind: KindConflict}
)

// E builds a tagged error
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap tags cause with kind. A cause that is already tagged keeps its own kind.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	var tagged *Error
	if errors.As(cause, &tagged) {
		return cause
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the kind of err, KindInternal when err is untagged
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// StatusOf returns the job status carried by err, if any
func StatusOf(err error) JobStatus {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Status
	}
	return ""
}
