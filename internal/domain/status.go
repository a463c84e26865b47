package domain

import (
	"strings"
	"time"
)

// ExecutionStatus is the lifecycle status shared by simulation executions
// and their group/step executions.
type ExecutionStatus string

const (
	StatusInitiating ExecutionStatus = "INITIATING"
	StatusPending    ExecutionStatus = "PENDING"
	StatusRunning    ExecutionStatus = "RUNNING"
	StatusCompleted  ExecutionStatus = "COMPLETED"
	StatusFailed     ExecutionStatus = "FAILED"
	StatusStopped    ExecutionStatus = "STOPPED"
)

// NormalizeStatus maps free-form status values to canonical statuses.
func NormalizeStatus(value string) ExecutionStatus {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(StatusInitiating):
		return StatusInitiating
	case string(StatusPending):
		return StatusPending
	case string(StatusRunning):
		return StatusRunning
	case string(StatusCompleted):
		return StatusCompleted
	case string(StatusFailed):
		return StatusFailed
	case string(StatusStopped):
		return StatusStopped
	default:
		return ""
	}
}

// Terminal reports whether the status is absorbing.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// CanTransition reports whether the lifecycle automaton permits moving from
// current to next. RUNNING is the only state a terminal status is reachable
// from; terminal states have no outgoing edges.
func CanTransition(current, next ExecutionStatus) bool {
	switch current {
	case StatusInitiating:
		return next == StatusPending
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusStopped
	default:
		return false
	}
}

// stamp records the timestamp field matching the destination status.
// PENDING has no dedicated timestamp; only creation metadata tracks it.
func stamp(next ExecutionStatus, at time.Time, started, completed, failed, stopped **time.Time) {
	t := at.UTC()
	switch next {
	case StatusRunning:
		*started = &t
	case StatusCompleted:
		*completed = &t
	case StatusFailed:
		*failed = &t
	case StatusStopped:
		*stopped = &t
	}
}
