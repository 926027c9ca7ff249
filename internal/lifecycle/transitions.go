// Package lifecycle owns the job state machine: every status write goes through Apply.
package lifecycle

import (
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
)

// Action is a requested lifecycle transition
type Action string

const (
	ActionClaim    Action = "claim"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

type rule struct {
	from []domain.JobStatus
	to   domain.JobStatus
	// owned transitions require the job's worker reference to equal the actor
	owned bool
}

var rules = map[Action]rule{
	ActionClaim:    {from: []domain.JobStatus{domain.JobStatusOpen}, to: domain.JobStatusClaimed},
	ActionStart:    {from: []domain.JobStatus{domain.JobStatusClaimed}, to: domain.JobStatusInProgress, owned: true},
	ActionComplete: {from: []domain.JobStatus{domain.JobStatusClaimed, domain.JobStatusInProgress}, to: domain.JobStatusCompleted, owned: true},
	ActionCancel:   {from: []domain.JobStatus{domain.JobStatusOpen, domain.JobStatusClaimed}, to: domain.JobStatusCancelled},
}

// CanTransition reports whether action is allowed from status
func CanTransition(status domain.JobStatus, action Action) bool {
	r, ok := rules[action]
	if !ok {
		return false
	}
	for _, from := range r.from {
		if from == status {
			return true
		}
	}
	return false
}

// Apply checks the guards of action against job and, if they hold, mutates job
// with the new status and side-effect timestamps. job is untouched on error.
func Apply(job *domain.Job, action Action, actor string, now time.Time) error {
	op := string(action)
	r, ok := rules[action]
	if !ok {
		return domain.E(domain.KindInvalid, op, "unknown lifecycle action")
	}

	if !CanTransition(job.Status, action) {
		return &domain.Error{
			Kind:   domain.KindPreconditionFailed,
			Op:     op,
			Msg:    "cannot " + op + " job",
			Status: job.Status,
		}
	}

	if action == ActionClaim && actor == "" {
		return domain.E(domain.KindNotEligible, op, "claim requires a worker")
	}

	if r.owned {
		if job.WorkerID == nil || *job.WorkerID == "" {
			return &domain.Error{
				Kind:   domain.KindPreconditionFailed,
				Op:     op,
				Msg:    "job has no assigned worker",
				Status: job.Status,
			}
		}
		if !job.HeldBy(actor) {
			return domain.E(domain.KindForbidden, op, "job does not belong to you")
		}
	}

	at := now
	switch action {
	case ActionClaim:
		worker := actor
		job.WorkerID = &worker
		job.ClaimedAt = &at
	case ActionStart:
		job.StartedAt = &at
	case ActionComplete:
		job.CompletedAt = &at
	case ActionCancel:
		job.CancelledAt = &at
	}
	job.Status = r.to
	job.UpdatedAt = now

	return nil
}
