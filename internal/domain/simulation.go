package domain

import (
	"errors"
	"strings"
	"time"
)

// PatternType selects the shape of a simulation's execution plan.
type PatternType string

const (
	PatternSequential PatternType = "sequential"
	PatternParallel   PatternType = "parallel"
)

// NormalizePatternType maps free-form values to canonical pattern types.
func NormalizePatternType(value string) PatternType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(PatternSequential):
		return PatternSequential
	case string(PatternParallel):
		return PatternParallel
	default:
		return ""
	}
}

// Simulation is a named simulation definition owning exactly one execution
// plan. Definitions are never physically deleted while an execution record
// references them.
type Simulation struct {
	ID          string
	Name        string
	Description string
	Namespace   string
	PatternType PatternType
	Plan        ExecutionPlan
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s Simulation) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("simulation id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("simulation name is required")
	}
	if NormalizePatternType(string(s.PatternType)) == "" {
		return errors.New("pattern type must be sequential or parallel")
	}
	if s.Plan.PatternType != s.PatternType {
		return &PatternTypeMismatchError{Expected: s.PatternType, Actual: s.Plan.PatternType}
	}
	return s.Plan.Validate()
}
