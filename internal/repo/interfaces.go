package repo

import (
	"context"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
)

type SimulationFilter struct {
	Name        string
	PatternType domain.PatternType
	Limit       int
}

type ExecutionFilter struct {
	SimulationID string
	Status       domain.ExecutionStatus
	Limit        int
}

// SimulationRepository manages simulation definitions and their plans.
type SimulationRepository interface {
	CreateSimulation(ctx context.Context, sim domain.Simulation) error
	GetSimulation(ctx context.Context, id string) (domain.Simulation, error)
	ListSimulations(ctx context.Context, filter SimulationFilter) ([]domain.Simulation, error)
}

// ExecutionRepository manages durable simulation execution records. Deleting
// an execution cascades to its group executions.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, exec domain.SimulationExecution, groups []domain.GroupExecution) error
	GetExecution(ctx context.Context, id string) (domain.SimulationExecution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]domain.SimulationExecution, error)
	UpdateExecution(ctx context.Context, exec domain.SimulationExecution) error
	HasActiveExecution(ctx context.Context, simulationID string) (bool, error)
	DeleteExecution(ctx context.Context, id string) error
}

// GroupExecutionRepository manages per-group/per-step execution records.
type GroupExecutionRepository interface {
	GetGroupExecution(ctx context.Context, id string) (domain.GroupExecution, error)
	ListByExecution(ctx context.Context, executionID string) ([]domain.GroupExecution, error)
	UpdateGroupExecution(ctx context.Context, record domain.GroupExecution) error
}

// TemplateRepository manages template references; definitions live in object
// storage under the reference's object key.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template domain.Template) error
	GetTemplate(ctx context.Context, id string) (domain.Template, error)
	ListTemplates(ctx context.Context, limit int) ([]domain.Template, error)
}
