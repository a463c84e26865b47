package executions

import (
	"errors"
	"fmt"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/execution/state"
)

// ErrRepeatOutOfRange rejects repeat reports that regress, duplicate, or
// exceed the planned total.
var ErrRepeatOutOfRange = errors.New("repeat out of range")

// Tracker applies lifecycle mutations to in-memory execution records. It
// never touches storage; the coordinator persists what the tracker changed.
type Tracker struct {
	now func() time.Time
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{now: now}
}

// Dispatch moves a freshly created execution and its children from
// INITIATING to PENDING.
func (t *Tracker) Dispatch(exec *domain.SimulationExecution, children []domain.GroupExecution) error {
	at := t.now()
	if err := exec.Transition(domain.StatusPending, at); err != nil {
		return err
	}
	for i := range children {
		if err := children[i].Transition(domain.StatusPending, at); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceRepeat records a completed repeat for one child. The first advance
// promotes a PENDING child (and parent) to RUNNING; reaching the planned
// total completes the child. When every child has completed the parent
// follows.
func (t *Tracker) AdvanceRepeat(exec *domain.SimulationExecution, children []domain.GroupExecution, idx int, repeat int) error {
	if exec.Status.Terminal() {
		return &domain.StatusConflictError{Current: exec.Status, Action: "report progress"}
	}
	if idx < 0 || idx >= len(children) {
		return fmt.Errorf("child index out of range: %d", idx)
	}
	child := &children[idx]
	at := t.now()

	if child.Status == domain.StatusPending {
		if err := child.Transition(domain.StatusRunning, at); err != nil {
			return err
		}
	}
	if exec.Status == domain.StatusPending {
		if err := exec.Transition(domain.StatusRunning, at); err != nil {
			return err
		}
	}
	if child.Status != domain.StatusRunning {
		return &domain.StatusConflictError{Current: child.Status, Action: "advance repeat"}
	}

	if repeat <= child.CurrentRepeat || repeat > child.TotalRepeats {
		return fmt.Errorf("%w: got %d, current %d, total %d", ErrRepeatOutOfRange, repeat, child.CurrentRepeat, child.TotalRepeats)
	}
	child.CurrentRepeat = repeat
	child.UpdatedAt = at.UTC()

	if child.CurrentRepeat == child.TotalRepeats {
		if err := child.Transition(domain.StatusCompleted, at); err != nil {
			return err
		}
	}

	if derived, ok := state.DeriveExecutionStatus(children); ok && !exec.Status.Terminal() {
		if derived == domain.StatusCompleted {
			if err := exec.Transition(domain.StatusCompleted, at); err != nil {
				return err
			}
		}
	}
	return nil
}

// FailGroup marks one child failed and cascades to the parent. The first
// failure wins: an already-failed parent keeps its failure reason, and a
// completed or stopped parent rejects the report.
func (t *Tracker) FailGroup(exec *domain.SimulationExecution, children []domain.GroupExecution, idx int, errText string) error {
	if exec.Status == domain.StatusCompleted || exec.Status == domain.StatusStopped {
		return &domain.StatusConflictError{Current: exec.Status, Action: "report failure"}
	}
	if idx < 0 || idx >= len(children) {
		return fmt.Errorf("child index out of range: %d", idx)
	}
	child := &children[idx]
	at := t.now()

	if child.Status.Terminal() {
		return &domain.StatusConflictError{Current: child.Status, Action: "report failure"}
	}
	if child.Status == domain.StatusPending {
		if err := child.Transition(domain.StatusRunning, at); err != nil {
			return err
		}
	}
	if err := child.Transition(domain.StatusFailed, at); err != nil {
		return err
	}
	child.Error = domain.TruncateErrorText(errText)

	if !exec.Status.Terminal() {
		if exec.Status == domain.StatusRunning {
			if err := exec.Transition(domain.StatusFailed, at); err != nil {
				return err
			}
		} else {
			exec.ForceTerminal(domain.StatusFailed, at)
		}
		exec.FailureReason = domain.TruncateErrorText(fmt.Sprintf("%s: %s", child.GroupID, child.Error))
	}
	return nil
}

// StopExecution terminalizes a live execution and all of its live children.
// Stopping an already-terminal execution is a no-op; the bool reports
// whether anything changed.
func (t *Tracker) StopExecution(exec *domain.SimulationExecution, children []domain.GroupExecution) bool {
	if exec.Status.Terminal() {
		return false
	}
	at := t.now()

	if exec.Status == domain.StatusRunning {
		_ = exec.Transition(domain.StatusStopped, at)
	} else {
		exec.ForceTerminal(domain.StatusStopped, at)
	}

	for i := range children {
		child := &children[i]
		if child.Status.Terminal() {
			continue
		}
		if child.Status == domain.StatusRunning {
			_ = child.Transition(domain.StatusStopped, at)
		} else {
			child.ForceTerminal(domain.StatusStopped, at)
		}
	}
	return true
}
