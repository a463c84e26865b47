package domain

import (
	"errors"
	"fmt"
)

// SimulationNotFoundError reports an unknown simulation id.
type SimulationNotFoundError struct {
	SimulationID string
}

func (e *SimulationNotFoundError) Error() string {
	return fmt.Sprintf("simulation not found: %s", e.SimulationID)
}

// ExecutionNotFoundError reports an unknown execution or group execution id.
type ExecutionNotFoundError struct {
	ExecutionID string
}

func (e *ExecutionNotFoundError) Error() string {
	return fmt.Sprintf("execution not found: %s", e.ExecutionID)
}

// StepNotFoundError reports an unknown step ordinal within a sequential plan.
type StepNotFoundError struct {
	StepOrder int
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step not found: order %d", e.StepOrder)
}

// GroupNotFoundError reports an unknown group id within a parallel plan.
type GroupNotFoundError struct {
	GroupID string
}

func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("group not found: %s", e.GroupID)
}

// PatternTypeMismatchError reports an operation that assumed the wrong plan
// shape for the simulation's pattern type.
type PatternTypeMismatchError struct {
	Expected PatternType
	Actual   PatternType
}

func (e *PatternTypeMismatchError) Error() string {
	return fmt.Sprintf("pattern type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// StatusConflictError reports an illegal lifecycle transition. It carries the
// current status and the attempted action for user display.
type StatusConflictError struct {
	Current ExecutionStatus
	Action  string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("current status %s does not permit %s", e.Current, e.Action)
}

// IsDomainError reports whether err is one of the typed domain errors, as
// opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	var simNotFound *SimulationNotFoundError
	var execNotFound *ExecutionNotFoundError
	var stepNotFound *StepNotFoundError
	var groupNotFound *GroupNotFoundError
	var mismatch *PatternTypeMismatchError
	var conflict *StatusConflictError
	return errors.As(err, &simNotFound) ||
		errors.As(err, &execNotFound) ||
		errors.As(err, &stepNotFound) ||
		errors.As(err, &groupNotFound) ||
		errors.As(err, &mismatch) ||
		errors.As(err, &conflict)
}
