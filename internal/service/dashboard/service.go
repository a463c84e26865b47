package dashboard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
)

// Service produces read-only rollups for the dashboard.
type Service struct {
	simulations repo.SimulationRepository
	executions  repo.ExecutionRepository
}

func New(simulationRepo repo.SimulationRepository, executionRepo repo.ExecutionRepository) *Service {
	if simulationRepo == nil || executionRepo == nil {
		return nil
	}
	return &Service{
		simulations: simulationRepo,
		executions:  executionRepo,
	}
}

type Summary struct {
	SimulationID       string
	Name               string
	PatternType        domain.PatternType
	UnitCount          int
	TotalAgents        int
	TotalExecutionTime int
	LatestExecution    *ExecutionSummary
}

type ExecutionSummary struct {
	ExecutionID   string
	Status        domain.ExecutionStatus
	StatusLabel   string
	FailureReason string
	StartedAt     *time.Time
	CreatedAt     time.Time
}

// Summarize rolls up one simulation: planned execution time is the sum of
// each unit's execution time multiplied by its repeat count, agents sum
// across units.
func (s *Service) Summarize(ctx context.Context, simulationID string) (Summary, error) {
	if s == nil {
		return Summary{}, errors.New("dashboard service not initialized")
	}
	simulationID = strings.TrimSpace(simulationID)
	sim, err := s.simulations.GetSimulation(ctx, simulationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Summary{}, &domain.SimulationNotFoundError{SimulationID: simulationID}
		}
		return Summary{}, err
	}

	totalTime, totalAgents := Rollup(sim.Plan)
	summary := Summary{
		SimulationID:       sim.ID,
		Name:               sim.Name,
		PatternType:        sim.PatternType,
		UnitCount:          len(sim.Plan.Units()),
		TotalAgents:        totalAgents,
		TotalExecutionTime: totalTime,
	}

	latest, err := s.executions.ListExecutions(ctx, repo.ExecutionFilter{SimulationID: sim.ID, Limit: 1})
	if err != nil {
		return Summary{}, err
	}
	if len(latest) > 0 {
		exec := latest[0]
		summary.LatestExecution = &ExecutionSummary{
			ExecutionID:   exec.ID,
			Status:        exec.Status,
			StatusLabel:   StatusLabel(exec.Status),
			FailureReason: exec.FailureReason,
			StartedAt:     exec.StartedAt,
			CreatedAt:     exec.CreatedAt,
		}
	}
	return summary, nil
}

// Rollup computes the planned execution time and agent totals for a plan.
func Rollup(plan domain.ExecutionPlan) (totalTime int, totalAgents int) {
	switch plan.PatternType {
	case domain.PatternSequential:
		for _, step := range plan.Steps {
			totalTime += step.ExecutionTime * step.RepeatCount
			totalAgents += step.AutonomousAgentCount
		}
	case domain.PatternParallel:
		for _, group := range plan.Groups {
			totalTime += group.ExecutionTime * group.RepeatCount
			totalAgents += group.AutonomousAgentCount
		}
	}
	return totalTime, totalAgents
}

// StatusLabel maps a lifecycle status to its display label.
func StatusLabel(status domain.ExecutionStatus) string {
	switch status {
	case domain.StatusInitiating:
		return "initiating"
	case domain.StatusPending:
		return "pending"
	case domain.StatusRunning:
		return "running"
	case domain.StatusCompleted:
		return "completed"
	case domain.StatusFailed:
		return "error"
	case domain.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
