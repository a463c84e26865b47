package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ExecutionPlan describes how a simulation runs: ordered steps for the
// sequential pattern, concurrent groups for the parallel pattern. A committed
// plan has steps XOR groups, matching its simulation's pattern type.
type ExecutionPlan struct {
	PatternType PatternType
	Steps       []PlanStep
	Groups      []PlanGroup
}

// PlanStep is one ordered step of a sequential plan. ExecutionTime is the
// budget for a single repeat.
type PlanStep struct {
	StepOrder            int
	TemplateID           string
	AutonomousAgentCount int
	ExecutionTime        int
	DelayAfterCompletion int
	RepeatCount          int
}

// PlanGroup is one concurrently running group of a parallel plan.
type PlanGroup struct {
	GroupID              string
	GroupName            string
	TemplateID           string
	AutonomousAgentCount int
	ExecutionTime        int
	AssignedArea         string
	RepeatCount          int
}

func (p ExecutionPlan) Validate() error {
	switch p.PatternType {
	case PatternSequential:
		if len(p.Groups) > 0 {
			return &PatternTypeMismatchError{Expected: PatternSequential, Actual: PatternParallel}
		}
		if len(p.Steps) == 0 {
			return errors.New("sequential plan requires at least one step")
		}
		seen := make(map[int]struct{}, len(p.Steps))
		for _, step := range p.Steps {
			if step.StepOrder < 1 {
				return fmt.Errorf("step order must be >= 1, got %d", step.StepOrder)
			}
			if _, ok := seen[step.StepOrder]; ok {
				return fmt.Errorf("duplicate step order %d", step.StepOrder)
			}
			seen[step.StepOrder] = struct{}{}
			if err := validateUnit(step.TemplateID, step.AutonomousAgentCount, step.ExecutionTime, step.RepeatCount); err != nil {
				return fmt.Errorf("step %d: %w", step.StepOrder, err)
			}
			if step.DelayAfterCompletion < 0 {
				return fmt.Errorf("step %d: delay after completion must be >= 0", step.StepOrder)
			}
		}
	case PatternParallel:
		if len(p.Steps) > 0 {
			return &PatternTypeMismatchError{Expected: PatternParallel, Actual: PatternSequential}
		}
		if len(p.Groups) == 0 {
			return errors.New("parallel plan requires at least one group")
		}
		seen := make(map[string]struct{}, len(p.Groups))
		for _, group := range p.Groups {
			id := strings.TrimSpace(group.GroupID)
			if id == "" {
				return errors.New("group id is required")
			}
			if _, ok := seen[id]; ok {
				return fmt.Errorf("duplicate group id %s", id)
			}
			seen[id] = struct{}{}
			if err := validateUnit(group.TemplateID, group.AutonomousAgentCount, group.ExecutionTime, group.RepeatCount); err != nil {
				return fmt.Errorf("group %s: %w", id, err)
			}
		}
	default:
		return errors.New("pattern type must be sequential or parallel")
	}
	return nil
}

func validateUnit(templateID string, agents, executionTime, repeats int) error {
	if strings.TrimSpace(templateID) == "" {
		return errors.New("template id is required")
	}
	if agents < 0 {
		return errors.New("autonomous agent count must be >= 0")
	}
	if executionTime < 0 {
		return errors.New("execution time must be >= 0")
	}
	if repeats < 1 {
		return errors.New("repeat count must be >= 1")
	}
	return nil
}

// StepByOrder returns the step with the given ordinal.
func (p ExecutionPlan) StepByOrder(order int) (PlanStep, error) {
	if p.PatternType != PatternSequential {
		return PlanStep{}, &PatternTypeMismatchError{Expected: PatternSequential, Actual: p.PatternType}
	}
	for _, step := range p.Steps {
		if step.StepOrder == order {
			return step, nil
		}
	}
	return PlanStep{}, &StepNotFoundError{StepOrder: order}
}

// GroupByID returns the group with the given id.
func (p ExecutionPlan) GroupByID(id string) (PlanGroup, error) {
	if p.PatternType != PatternParallel {
		return PlanGroup{}, &PatternTypeMismatchError{Expected: PatternParallel, Actual: p.PatternType}
	}
	id = strings.TrimSpace(id)
	for _, group := range p.Groups {
		if group.GroupID == id {
			return group, nil
		}
	}
	return PlanGroup{}, &GroupNotFoundError{GroupID: id}
}

// Units flattens the plan into the group/step execution seeds created at
// execution start: a stable key, agent count and total repeats per unit.
func (p ExecutionPlan) Units() []PlanUnit {
	switch p.PatternType {
	case PatternSequential:
		units := make([]PlanUnit, 0, len(p.Steps))
		for _, step := range p.Steps {
			units = append(units, PlanUnit{
				Key:                  fmt.Sprintf("step-%d", step.StepOrder),
				TemplateID:           step.TemplateID,
				AutonomousAgentCount: step.AutonomousAgentCount,
				ExecutionTime:        step.ExecutionTime,
				TotalRepeats:         step.RepeatCount,
			})
		}
		return units
	case PatternParallel:
		units := make([]PlanUnit, 0, len(p.Groups))
		for _, group := range p.Groups {
			units = append(units, PlanUnit{
				Key:                  group.GroupID,
				TemplateID:           group.TemplateID,
				AutonomousAgentCount: group.AutonomousAgentCount,
				ExecutionTime:        group.ExecutionTime,
				TotalRepeats:         group.RepeatCount,
			})
		}
		return units
	default:
		return nil
	}
}

// PlanUnit is the pattern-independent view of one step or group.
type PlanUnit struct {
	Key                  string
	TemplateID           string
	AutonomousAgentCount int
	ExecutionTime        int
	TotalRepeats         int
}
