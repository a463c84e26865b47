package domain

import (
	"errors"
	"strings"
	"time"
)

// MaxErrorTextLen bounds error text persisted on execution records.
const MaxErrorTextLen = 500

// SimulationExecution is one durable run of a simulation's plan.
type SimulationExecution struct {
	ID            string
	SimulationID  string
	PatternType   PatternType
	Status        ExecutionStatus
	FailureReason string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
	StoppedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e SimulationExecution) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("execution id is required")
	}
	if strings.TrimSpace(e.SimulationID) == "" {
		return errors.New("simulation id is required")
	}
	if NormalizeStatus(string(e.Status)) == "" {
		return errors.New("status is required")
	}
	if NormalizePatternType(string(e.PatternType)) == "" {
		return errors.New("pattern type must be sequential or parallel")
	}
	return nil
}

// Transition applies a validated status change and stamps the timestamp
// field matching the destination status.
func (e *SimulationExecution) Transition(next ExecutionStatus, at time.Time) error {
	if !CanTransition(e.Status, next) {
		return &StatusConflictError{Current: e.Status, Action: "transition to " + string(next)}
	}
	e.Status = next
	stamp(next, at, &e.StartedAt, &e.CompletedAt, &e.FailedAt, &e.StoppedAt)
	e.UpdatedAt = at.UTC()
	return nil
}

// ForceTerminal stamps a terminal status without consulting the automaton.
// Reserved for the stop cascade, which terminalizes pre-run children; request
// level transitions always go through Transition.
func (e *SimulationExecution) ForceTerminal(next ExecutionStatus, at time.Time) {
	if !next.Terminal() || e.Status.Terminal() {
		return
	}
	e.Status = next
	stamp(next, at, &e.StartedAt, &e.CompletedAt, &e.FailedAt, &e.StoppedAt)
	e.UpdatedAt = at.UTC()
}

// GroupExecution tracks one group (or step, structurally identical) within a
// simulation execution.
type GroupExecution struct {
	ID                   string
	ExecutionID          string
	GroupID              string
	Status               ExecutionStatus
	Error                string
	AutonomousAgentCount int
	CurrentRepeat        int
	TotalRepeats         int
	StartedAt            *time.Time
	CompletedAt          *time.Time
	FailedAt             *time.Time
	StoppedAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (g GroupExecution) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("group execution id is required")
	}
	if strings.TrimSpace(g.ExecutionID) == "" {
		return errors.New("execution id is required")
	}
	if strings.TrimSpace(g.GroupID) == "" {
		return errors.New("group id is required")
	}
	if NormalizeStatus(string(g.Status)) == "" {
		return errors.New("status is required")
	}
	if g.TotalRepeats < 1 {
		return errors.New("total repeats must be >= 1")
	}
	if g.CurrentRepeat < 0 || g.CurrentRepeat > g.TotalRepeats {
		return errors.New("current repeat must be within [0, total repeats]")
	}
	return nil
}

// Transition applies a validated status change and stamps the timestamp
// field matching the destination status.
func (g *GroupExecution) Transition(next ExecutionStatus, at time.Time) error {
	if !CanTransition(g.Status, next) {
		return &StatusConflictError{Current: g.Status, Action: "transition to " + string(next)}
	}
	g.Status = next
	stamp(next, at, &g.StartedAt, &g.CompletedAt, &g.FailedAt, &g.StoppedAt)
	g.UpdatedAt = at.UTC()
	return nil
}

// ForceTerminal stamps a terminal status without consulting the automaton.
// See SimulationExecution.ForceTerminal.
func (g *GroupExecution) ForceTerminal(next ExecutionStatus, at time.Time) {
	if !next.Terminal() || g.Status.Terminal() {
		return
	}
	g.Status = next
	stamp(next, at, &g.StartedAt, &g.CompletedAt, &g.FailedAt, &g.StoppedAt)
	g.UpdatedAt = at.UTC()
}

// Progress returns the completion ratio of the record in [0, 1].
func (g GroupExecution) Progress() float64 {
	switch g.Status {
	case StatusCompleted:
		return 1.0
	case StatusRunning:
		if g.TotalRepeats > 0 {
			ratio := float64(g.CurrentRepeat) / float64(g.TotalRepeats)
			if ratio > 1.0 {
				return 1.0
			}
			return ratio
		}
		return 0.0
	default:
		return 0.0
	}
}

// TruncateErrorText bounds error text stored on execution records.
func TruncateErrorText(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > MaxErrorTextLen {
		return text[:MaxErrorTextLen]
	}
	return text
}
