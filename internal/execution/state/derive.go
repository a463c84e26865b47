package state

import (
	"github.com/agentsim-labs/agentsim-go/internal/domain"
)

// DeriveExecutionStatus computes the parent status implied by the child
// records. The boolean is false while the children leave the parent
// undetermined (some child still has work to do and nothing failed).
//
// The first failure wins: one FAILED child fails the whole execution
// regardless of what the siblings do afterwards.
func DeriveExecutionStatus(children []domain.GroupExecution) (domain.ExecutionStatus, bool) {
	if len(children) == 0 {
		return "", false
	}

	completed := 0
	stopped := 0
	for _, child := range children {
		switch child.Status {
		case domain.StatusFailed:
			return domain.StatusFailed, true
		case domain.StatusCompleted:
			completed++
		case domain.StatusStopped:
			stopped++
		}
	}

	if completed == len(children) {
		return domain.StatusCompleted, true
	}
	if completed+stopped == len(children) {
		return domain.StatusStopped, true
	}
	return "", false
}

// FirstFailure returns the failed child whose failure happened earliest.
// Children without a failure timestamp lose ties to those with one.
func FirstFailure(children []domain.GroupExecution) (domain.GroupExecution, bool) {
	var first domain.GroupExecution
	found := false
	for _, child := range children {
		if child.Status != domain.StatusFailed {
			continue
		}
		if !found {
			first = child
			found = true
			continue
		}
		if child.FailedAt == nil {
			continue
		}
		if first.FailedAt == nil || child.FailedAt.Before(*first.FailedAt) {
			first = child
		}
	}
	return first, found
}
