package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
)

type ExecutionStore struct {
	db DB
}

const (
	insertExecutionQuery = `INSERT INTO simulation_executions (
		execution_id,
		simulation_id,
		pattern_type,
		status,
		failure_reason,
		started_at,
		completed_at,
		failed_at,
		stopped_at,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	selectExecutionQuery = `SELECT execution_id, simulation_id, pattern_type, status, failure_reason,
		started_at, completed_at, failed_at, stopped_at, created_at, updated_at
	 FROM simulation_executions
	 WHERE execution_id = $1`

	updateExecutionQuery = `UPDATE simulation_executions
	 SET status = $1, failure_reason = $2, started_at = $3, completed_at = $4, failed_at = $5, stopped_at = $6, updated_at = $7
	 WHERE execution_id = $8`

	activeExecutionExistsQuery = `SELECT EXISTS (
		SELECT 1 FROM simulation_executions
		WHERE simulation_id = $1 AND status IN ('INITIATING','PENDING','RUNNING')
	)`

	deleteExecutionQuery = `DELETE FROM simulation_executions WHERE execution_id = $1`
)

func NewExecutionStore(db DB) *ExecutionStore {
	if db == nil {
		return nil
	}
	return &ExecutionStore{db: db}
}

func (s *ExecutionStore) CreateExecution(ctx context.Context, exec domain.SimulationExecution, groups []domain.GroupExecution) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("execution store not initialized")
	}
	if err := exec.Validate(); err != nil {
		return err
	}
	for _, group := range groups {
		if err := group.Validate(); err != nil {
			return err
		}
		if group.ExecutionID != exec.ID {
			return fmt.Errorf("group execution %s does not belong to execution %s", group.ID, exec.ID)
		}
	}
	createdAt := normalizeTime(exec.CreatedAt)
	_, err := s.db.ExecContext(
		ctx,
		insertExecutionQuery,
		strings.TrimSpace(exec.ID),
		strings.TrimSpace(exec.SimulationID),
		string(exec.PatternType),
		string(exec.Status),
		nullIfEmpty(exec.FailureReason),
		nullTime(exec.StartedAt),
		nullTime(exec.CompletedAt),
		nullTime(exec.FailedAt),
		nullTime(exec.StoppedAt),
		createdAt,
		normalizeTime(exec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	for _, group := range groups {
		if _, err := s.db.ExecContext(
			ctx,
			insertGroupExecutionQuery,
			strings.TrimSpace(group.ID),
			strings.TrimSpace(group.ExecutionID),
			strings.TrimSpace(group.GroupID),
			string(group.Status),
			nullIfEmpty(group.Error),
			group.AutonomousAgentCount,
			group.CurrentRepeat,
			group.TotalRepeats,
			nullTime(group.StartedAt),
			nullTime(group.CompletedAt),
			nullTime(group.FailedAt),
			nullTime(group.StoppedAt),
			normalizeTime(group.CreatedAt),
			normalizeTime(group.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert group execution %s: %w", group.GroupID, err)
		}
	}
	return nil
}

func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (domain.SimulationExecution, error) {
	if s == nil || s.db == nil {
		return domain.SimulationExecution{}, fmt.Errorf("execution store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SimulationExecution{}, fmt.Errorf("execution id is required")
	}
	row := s.db.QueryRowContext(ctx, selectExecutionQuery, id)
	return scanExecution(row)
}

func (s *ExecutionStore) ListExecutions(ctx context.Context, filter repo.ExecutionFilter) ([]domain.SimulationExecution, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("execution store not initialized")
	}
	if strings.TrimSpace(filter.SimulationID) == "" {
		return nil, fmt.Errorf("simulation id is required")
	}
	args := []any{strings.TrimSpace(filter.SimulationID)}
	query := `SELECT execution_id, simulation_id, pattern_type, status, failure_reason,
		started_at, completed_at, failed_at, stopped_at, created_at, updated_at
		FROM simulation_executions
		WHERE simulation_id = $1`
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	executions := make([]domain.SimulationExecution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return executions, nil
}

func (s *ExecutionStore) UpdateExecution(ctx context.Context, exec domain.SimulationExecution) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("execution store not initialized")
	}
	if err := exec.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		updateExecutionQuery,
		string(exec.Status),
		nullIfEmpty(exec.FailureReason),
		nullTime(exec.StartedAt),
		nullTime(exec.CompletedAt),
		nullTime(exec.FailedAt),
		nullTime(exec.StoppedAt),
		normalizeTime(exec.UpdatedAt),
		strings.TrimSpace(exec.ID),
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *ExecutionStore) HasActiveExecution(ctx context.Context, simulationID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("execution store not initialized")
	}
	simulationID = strings.TrimSpace(simulationID)
	if simulationID == "" {
		return false, fmt.Errorf("simulation id is required")
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, activeExecutionExistsQuery, simulationID).Scan(&exists); err != nil {
		return false, fmt.Errorf("active execution exists: %w", err)
	}
	return exists, nil
}

// DeleteExecution removes the execution row; group executions go with it via
// the ON DELETE CASCADE foreign key.
func (s *ExecutionStore) DeleteExecution(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("execution store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("execution id is required")
	}
	res, err := s.db.ExecContext(ctx, deleteExecutionQuery, id)
	if err != nil {
		return fmt.Errorf("delete execution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete execution: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type executionScanner interface {
	Scan(dest ...any) error
}

func scanExecution(scanner executionScanner) (domain.SimulationExecution, error) {
	var exec domain.SimulationExecution
	var patternType, status string
	var failureReason sql.NullString
	var started, completed, failed, stopped sql.NullTime
	if err := scanner.Scan(
		&exec.ID,
		&exec.SimulationID,
		&patternType,
		&status,
		&failureReason,
		&started,
		&completed,
		&failed,
		&stopped,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	); err != nil {
		return domain.SimulationExecution{}, handleNotFound(err)
	}
	exec.PatternType = domain.NormalizePatternType(patternType)
	exec.Status = domain.NormalizeStatus(status)
	exec.FailureReason = failureReason.String
	exec.StartedAt = timePtr(started)
	exec.CompletedAt = timePtr(completed)
	exec.FailedAt = timePtr(failed)
	exec.StoppedAt = timePtr(stopped)
	return exec, nil
}
