package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
)

type SimulationStore struct {
	db DB
}

const (
	insertSimulationQuery = `INSERT INTO simulations (
		simulation_id,
		name,
		description,
		namespace,
		pattern_type,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$6)`

	insertSimulationStepQuery = `INSERT INTO simulation_steps (
		simulation_id,
		step_order,
		template_id,
		autonomous_agent_count,
		execution_time,
		delay_after_completion,
		repeat_count
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	insertSimulationGroupQuery = `INSERT INTO simulation_groups (
		simulation_id,
		group_id,
		group_name,
		template_id,
		autonomous_agent_count,
		execution_time,
		assigned_area,
		repeat_count
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	selectSimulationQuery = `SELECT simulation_id, name, description, namespace, pattern_type, created_at, updated_at
	 FROM simulations
	 WHERE simulation_id = $1`

	listSimulationStepsQuery = `SELECT step_order, template_id, autonomous_agent_count, execution_time, delay_after_completion, repeat_count
	 FROM simulation_steps
	 WHERE simulation_id = $1
	 ORDER BY step_order ASC`

	listSimulationGroupsQuery = `SELECT group_id, group_name, template_id, autonomous_agent_count, execution_time, assigned_area, repeat_count
	 FROM simulation_groups
	 WHERE simulation_id = $1
	 ORDER BY group_id ASC`
)

func NewSimulationStore(db DB) *SimulationStore {
	if db == nil {
		return nil
	}
	return &SimulationStore{db: db}
}

func (s *SimulationStore) CreateSimulation(ctx context.Context, sim domain.Simulation) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("simulation store not initialized")
	}
	if err := sim.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(sim.CreatedAt)
	_, err := s.db.ExecContext(
		ctx,
		insertSimulationQuery,
		strings.TrimSpace(sim.ID),
		strings.TrimSpace(sim.Name),
		strings.TrimSpace(sim.Description),
		nullIfEmpty(sim.Namespace),
		string(sim.PatternType),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert simulation: %w", err)
	}
	for _, step := range sim.Plan.Steps {
		if _, err := s.db.ExecContext(
			ctx,
			insertSimulationStepQuery,
			sim.ID,
			step.StepOrder,
			step.TemplateID,
			step.AutonomousAgentCount,
			step.ExecutionTime,
			step.DelayAfterCompletion,
			step.RepeatCount,
		); err != nil {
			return fmt.Errorf("insert simulation step %d: %w", step.StepOrder, err)
		}
	}
	for _, group := range sim.Plan.Groups {
		if _, err := s.db.ExecContext(
			ctx,
			insertSimulationGroupQuery,
			sim.ID,
			group.GroupID,
			group.GroupName,
			group.TemplateID,
			group.AutonomousAgentCount,
			group.ExecutionTime,
			nullIfEmpty(group.AssignedArea),
			group.RepeatCount,
		); err != nil {
			return fmt.Errorf("insert simulation group %s: %w", group.GroupID, err)
		}
	}
	return nil
}

func (s *SimulationStore) GetSimulation(ctx context.Context, id string) (domain.Simulation, error) {
	if s == nil || s.db == nil {
		return domain.Simulation{}, fmt.Errorf("simulation store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Simulation{}, fmt.Errorf("simulation id is required")
	}
	row := s.db.QueryRowContext(ctx, selectSimulationQuery, id)
	sim, err := scanSimulation(row)
	if err != nil {
		return domain.Simulation{}, err
	}
	plan, err := s.loadPlan(ctx, sim.ID, sim.PatternType)
	if err != nil {
		return domain.Simulation{}, err
	}
	sim.Plan = plan
	return sim, nil
}

func (s *SimulationStore) ListSimulations(ctx context.Context, filter repo.SimulationFilter) ([]domain.Simulation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("simulation store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if strings.TrimSpace(filter.Name) != "" {
		args = append(args, strings.TrimSpace(filter.Name))
		clauses = append(clauses, fmt.Sprintf("name = $%d", len(args)))
	}
	if filter.PatternType != "" {
		args = append(args, string(filter.PatternType))
		clauses = append(clauses, fmt.Sprintf("pattern_type = $%d", len(args)))
	}
	query := `SELECT simulation_id, name, description, namespace, pattern_type, created_at, updated_at FROM simulations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	defer rows.Close()

	sims := make([]domain.Simulation, 0)
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		sims = append(sims, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	for i := range sims {
		plan, err := s.loadPlan(ctx, sims[i].ID, sims[i].PatternType)
		if err != nil {
			return nil, err
		}
		sims[i].Plan = plan
	}
	return sims, nil
}

func (s *SimulationStore) loadPlan(ctx context.Context, simulationID string, pattern domain.PatternType) (domain.ExecutionPlan, error) {
	plan := domain.ExecutionPlan{PatternType: pattern}
	switch pattern {
	case domain.PatternSequential:
		rows, err := s.db.QueryContext(ctx, listSimulationStepsQuery, simulationID)
		if err != nil {
			return domain.ExecutionPlan{}, fmt.Errorf("list simulation steps: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var step domain.PlanStep
			if err := rows.Scan(
				&step.StepOrder,
				&step.TemplateID,
				&step.AutonomousAgentCount,
				&step.ExecutionTime,
				&step.DelayAfterCompletion,
				&step.RepeatCount,
			); err != nil {
				return domain.ExecutionPlan{}, fmt.Errorf("scan simulation step: %w", err)
			}
			plan.Steps = append(plan.Steps, step)
		}
		if err := rows.Err(); err != nil {
			return domain.ExecutionPlan{}, fmt.Errorf("list simulation steps: %w", err)
		}
	case domain.PatternParallel:
		rows, err := s.db.QueryContext(ctx, listSimulationGroupsQuery, simulationID)
		if err != nil {
			return domain.ExecutionPlan{}, fmt.Errorf("list simulation groups: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var group domain.PlanGroup
			var assignedArea sql.NullString
			if err := rows.Scan(
				&group.GroupID,
				&group.GroupName,
				&group.TemplateID,
				&group.AutonomousAgentCount,
				&group.ExecutionTime,
				&assignedArea,
				&group.RepeatCount,
			); err != nil {
				return domain.ExecutionPlan{}, fmt.Errorf("scan simulation group: %w", err)
			}
			group.AssignedArea = assignedArea.String
			plan.Groups = append(plan.Groups, group)
		}
		if err := rows.Err(); err != nil {
			return domain.ExecutionPlan{}, fmt.Errorf("list simulation groups: %w", err)
		}
	}
	return plan, nil
}

type simulationScanner interface {
	Scan(dest ...any) error
}

func scanSimulation(scanner simulationScanner) (domain.Simulation, error) {
	var sim domain.Simulation
	var patternType string
	var namespace, description sql.NullString
	if err := scanner.Scan(
		&sim.ID,
		&sim.Name,
		&description,
		&namespace,
		&patternType,
		&sim.CreatedAt,
		&sim.UpdatedAt,
	); err != nil {
		return domain.Simulation{}, handleNotFound(err)
	}
	sim.Description = description.String
	sim.Namespace = namespace.String
	sim.PatternType = domain.NormalizePatternType(patternType)
	return sim, nil
}
